package conversation

import "testing"

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{
			name: "no citations",
			msg:  Message{Text: "hello", Sender: SenderUser},
		},
		{
			name: "full citation arrays",
			msg: Message{
				Text:              "answer [1][2]",
				Sender:            SenderBot,
				PublicationIDs:    []string{"p1", "p2"},
				PublicationTitles: []string{"Paper One", "Paper Two"},
				Publications:      []string{"text one", "text two"},
			},
		},
		{
			name: "pruned message keeps ids and titles",
			msg: Message{
				Text:              "answer [1]",
				Sender:            SenderBot,
				PublicationIDs:    []string{"p1"},
				PublicationTitles: []string{"Paper One"},
			},
		},
		{
			name: "ids and titles length mismatch",
			msg: Message{
				PublicationIDs:    []string{"p1", "p2"},
				PublicationTitles: []string{"Paper One"},
			},
			wantErr: true,
		},
		{
			name: "publications length mismatch",
			msg: Message{
				PublicationIDs:    []string{"p1"},
				PublicationTitles: []string{"Paper One"},
				Publications:      []string{"one", "two"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConversationClone(t *testing.T) {
	t.Parallel()

	orig := &Conversation{
		ID:      "c1",
		OwnerID: "user-1",
		Kind:    KindGeneral,
		Messages: []Message{
			{
				Text:              "answer [1]",
				Sender:            SenderBot,
				PublicationIDs:    []string{"p1"},
				PublicationTitles: []string{"Paper One"},
				Publications:      []string{"source text"},
			},
		},
	}

	cp := orig.Clone()
	cp.Messages[0].Text = "mutated"
	cp.Messages[0].PublicationIDs[0] = "mutated"

	if orig.Messages[0].Text != "answer [1]" {
		t.Error("Clone shares message backing array with original")
	}
	if orig.Messages[0].PublicationIDs[0] != "p1" {
		t.Error("Clone shares citation arrays with original")
	}
}

func TestCloneNil(t *testing.T) {
	t.Parallel()

	var c *Conversation
	if c.Clone() != nil {
		t.Error("Clone of nil conversation should be nil")
	}
	if CloneMessages(nil) != nil {
		t.Error("CloneMessages(nil) should be nil")
	}
}
