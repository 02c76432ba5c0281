package conversation

import (
	"reflect"
	"testing"
)

func TestPruneForUpdate(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{
			Text:              "first answer [1]",
			Sender:            SenderBot,
			PublicationIDs:    []string{"p1"},
			PublicationTitles: []string{"Paper One"},
			Publications:      []string{"old source text"},
		},
		{Text: "next question", Sender: SenderUser},
		{
			Text:              "latest answer [1][2]",
			Sender:            SenderBot,
			PublicationIDs:    []string{"p2", "p3"},
			PublicationTitles: []string{"Paper Two", "Paper Three"},
			Publications:      []string{"source two", "source three"},
		},
	}

	pruned := PruneForUpdate(msgs)

	if len(pruned[0].Publications) != 0 {
		t.Error("old message kept its Publications payload")
	}
	if !reflect.DeepEqual(pruned[0].PublicationIDs, []string{"p1"}) {
		t.Errorf("old message ids = %v, want retained", pruned[0].PublicationIDs)
	}
	if !reflect.DeepEqual(pruned[0].PublicationTitles, []string{"Paper One"}) {
		t.Errorf("old message titles = %v, want retained", pruned[0].PublicationTitles)
	}
	if !reflect.DeepEqual(pruned[2].Publications, []string{"source two", "source three"}) {
		t.Errorf("last message publications = %v, want untouched", pruned[2].Publications)
	}

	// Input must not be mutated.
	if len(msgs[0].Publications) != 1 {
		t.Error("PruneForUpdate mutated its input")
	}
}

func TestPruneForUpdate_Short(t *testing.T) {
	t.Parallel()

	if got := PruneForUpdate(nil); got != nil {
		t.Errorf("PruneForUpdate(nil) = %v, want nil", got)
	}

	single := []Message{{
		Text:         "only answer [1]",
		Sender:       SenderBot,
		Publications: []string{"source"},
	}}
	pruned := PruneForUpdate(single)
	if len(pruned[0].Publications) != 1 {
		t.Error("sole message must keep its Publications payload")
	}
}
