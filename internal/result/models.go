package result

// Kind names a structured output shape.
type Kind string

const (
	KindLecture           Kind = "lecture"
	KindQuiz              Kind = "quiz"
	KindQuizEvaluation    Kind = "quiz_evaluation"
	KindInterviewFeedback Kind = "interview_feedback"
)

// Lecture is a generated lesson on a topic.
type Lecture struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary,omitempty"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Quiz is an ordered list of open questions.
type Quiz struct {
	Questions []string `json:"questions"`
}

// QuizEvaluation scores a set of answers. Score is 0..100, each SubScore
// 0..10.
type QuizEvaluation struct {
	Score    int                `json:"score"`
	Feedback []QuestionFeedback `json:"feedback"`
}

type QuestionFeedback struct {
	Index    int    `json:"index"`
	SubScore int    `json:"sub_score"`
	Comment  string `json:"comment"`
}

// InterviewFeedback grades a mock interview transcript. Overall is 0..100,
// the three dimensions 0..10.
type InterviewFeedback struct {
	Overall       int      `json:"overall"`
	Communication int      `json:"communication"`
	Technical     int      `json:"technical"`
	Confidence    int      `json:"confidence"`
	Strengths     []string `json:"strengths"`
	Improvements  []string `json:"improvements"`
	Summary       string   `json:"summary,omitempty"`
}
