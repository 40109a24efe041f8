package models

// Evaluation is a model-produced review of a written answer.
type Evaluation struct {
	Rating       int      `json:"rating"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Improvements []string `json:"improvements"`
}

// Answer is one model-generated mains-style answer, or an evaluation record
// when the backend reviewed a user answer instead of writing one.
type Answer struct {
	Introduction string      `json:"introduction"`
	Body         []string    `json:"body"`
	Conclusion   string      `json:"conclusion"`
	Evaluation   *Evaluation `json:"evaluation,omitempty"`
}

// AnswerSet maps question index to answer. Indices align positionally with
// the question sequence that produced them; no reordering happens between
// request and response handling.
type AnswerSet struct {
	Answers []Answer `json:"answers"`
}
