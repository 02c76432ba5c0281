package chat

import (
	"fmt"
	"strings"
)

// personaPrompt is the system message prepended to every model call.
const personaPrompt = "Your name is PaperChat. You are a helpful assistant that can answer NLP-related " +
	"questions and recommend research literature from a database of NLP papers. Your focus is on " +
	"natural language processing specifically and not knowledge graphs."

// Literal classifier outputs. The model is instructed to emit exactly one
// of these tags or a keyword query; anything else is taken verbatim as the
// query.
const (
	tagChitChat = "chit-chat"
	tagFollowUp = "follow-up"
	tagNoAnswer = "No Answer Found"
)

// paperSeparator joins paper blocks inside the grounded prompt.
const paperSeparator = " ############## "

// classifierPrompt asks the model to rewrite a user message into a short
// keyword query, or to emit one of the literal intent tags.
func classifierPrompt(userMessage string) string {
	return "A user has submitted a new query to a database that includes NLP related research papers: " +
		userMessage +
		"\nBased on this input, please provide a succinct and relevant search query, specifically " +
		"optimized for keyword-based semantic search within an NLP paper database. The response should " +
		"consist only of the query, formulated as a set of keywords rather than a complete sentence. " +
		"For instance, if the user's input is 'What is attention?' or 'Tell me about attention', respond " +
		"with 'attention' as the search query. Avoid using longer phrases like 'Give me papers about " +
		"attention' or appending terms such as 'NLP', like in 'attention NLP'. Also do not include the " +
		"terms 'definition', 'concepts', 'mechanisms', 'approach', 'fundamentals', 'basics', " +
		"'techniques', 'applications', 'overview' or similar in the search terms. Keep the query " +
		"straightforward. Refrain from using quotation marks at the beginning and end of the query. The " +
		"search query should not exceed 5 words and should not include terms like 'NLP paper', 'paper', " +
		"or 'research', as the database exclusively contains NLP papers." +
		"\nIn case the user input is chit-chat related, like 'Hello', 'What can you do for me?', 'What " +
		"is your purpose?', 'What is your name?', 'What can you help me with?', or similar, do not " +
		"provide a search query. Instead, reply with: '" + tagChitChat + "'" +
		"\nIn case the user input is a follow-up question related to the previous chat, like 'Tell me " +
		"more', 'Explain the second paper', or 'Tell me more about the third paper', do not provide a " +
		"new search query. Instead, reply with: '" + tagFollowUp + "'"
}

// groundedPrompt builds the question that carries the paper blocks and the
// citation rules for a retrieval-backed answer.
func groundedPrompt(userQuery string, blocks []string) string {
	return "Respond to the following user query: " + userQuery +
		".\nUse the information from the provided papers. Some papers include full texts, while others " +
		"only have titles. Papers include position numbers like 'Paper Number 1:' and are separated by " +
		"'##############'. Here are the papers: " +
		strings.Join(blocks, paperSeparator) +
		"\nYour response should directly address the user query, without individually explaining each " +
		"paper. The user should not be aware of the specific papers used in formulating your answer. " +
		"Focus on explaining the concept rather than detailing the papers themselves. Aim for a response " +
		"that is approximately 150 words in length. Include inline citations like [1] for the first " +
		"paper, [2] for the second, and so on, corresponding to the order in which the papers were " +
		"provided and the position numbers. If citing from multiple sources, list them in separate " +
		"square brackets, like [1][2]. Cite the sentences influenced by these papers, not the paper " +
		"names directly. Do not list the references as '[1] paper name, [2] paper name, etc.' at the " +
		"end of your response. Cite each paper in an independent sentence and not together in the same " +
		"sentence. Refrain from including the referenced papers in the last sentence."
}

// docPrompt builds the single-document question: answer from one paper's
// full text, with a Supporting Statements section for grounded answers.
func docPrompt(paperText, history, question string) string {
	convHistory := ""
	if history != "" {
		convHistory = "\n\nThis is our conversation history:\n" + history
	}
	return fmt.Sprintf("Answer the new question based on the following paper: %s. ", paperText) +
		"If the user query is chit-chat related, answer accordingly without considering the paper and " +
		"do not provide supporting statements." +
		"If the question related to the paper, first answer the question, then in your response, create " +
		"a new section on the next line titled 'Supporting Statements'. In this section, provide the " +
		"supporting statements from the paper that substantiate your answer. Present each statement on " +
		"a separate new line, one by one, and include the corresponding page number at the end. " +
		convHistory +
		fmt.Sprintf("\n\nThis is the new question: %s", question)
}

// followupPrompt asks for exactly three fresh questions about the paper.
func followupPrompt(paperText string, asked []string) string {
	return fmt.Sprintf("Please provide three concise follow-up questions that can be answered by the paper %s. ", paperText) +
		fmt.Sprintf("These questions should be distinct from previously asked questions: %s. ", strings.Join(asked, ", ")) +
		"Yet they may be similar in nature to following questions such as: \"What is the goal of this " +
		"paper?\", \"What are the key results of this paper?\", \"What methods are used in this paper?\"\n" +
		"In your response, list only the three questions one-by-one (like 1. 2. 3.), separated by line " +
		"break, nothing else!"
}

// namePrompt asks for a short conversation name for a document chat.
func namePrompt(question, paperTitle string) string {
	return "suggest a name for the question: " + question +
		" asked for paper " + paperTitle +
		" answer should contain only your suggestion without quotes"
}
