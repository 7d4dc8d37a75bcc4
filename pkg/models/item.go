package models

// Item represents a vocabulary entry (a character or word) in a level's deck.
// Items are reference data; the scheduler never mutates them.
type Item struct {
	ID            string `json:"id" db:"id"`                       // Stable key, usually the character itself
	Level         int    `json:"level" db:"level"`                 // 0 is the learner's custom deck
	Text          string `json:"text" db:"text"`
	Pronunciation string `json:"pronunciation" db:"pronunciation"` // Pinyin with tone marks or tone digits
	Meaning       string `json:"meaning" db:"meaning"`
	Explanation   string `json:"explanation" db:"explanation"`
}

// CustomLevel is the level that holds learner-created cards.
const CustomLevel = 0
