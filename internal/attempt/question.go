package attempt

import "strings"

// Choice is one of the four labeled options of a multiple-choice question.
type Choice string

const (
	ChoiceA Choice = "A"
	ChoiceB Choice = "B"
	ChoiceC Choice = "C"
	ChoiceD Choice = "D"
)

// Valid reports whether c is one of A, B, C or D.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceA, ChoiceB, ChoiceC, ChoiceD:
		return true
	}
	return false
}

// ParseChoice normalizes user input such as " b " into a Choice.
func ParseChoice(s string) (Choice, bool) {
	c := Choice(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Options holds the four choice texts of a question.
type Options struct {
	A string `json:"A"`
	B string `json:"B"`
	C string `json:"C"`
	D string `json:"D"`
}

// Question is an immutable multiple-choice question inside an attempt.
type Question struct {
	Number        int     `json:"question_number"`
	Text          string  `json:"question_text"`
	Options       Options `json:"options"`
	CorrectOption *Choice `json:"correct_option,omitempty"`
}
