package phrasebook

// Pair 将同一句话在不同语言下的写法放在一起，键为语言名称（如 "English"）。
type Pair map[string]string

// Phrasebook captures the static phrases the interpreter understands without
// a live model: greeting/politeness pairs, repeat requests and the notice sent
// when there is nothing to repeat.
type Phrasebook struct {
	Pairs          []Pair              `yaml:"pairs"`
	Repeat         map[string][]string `yaml:"repeat"`
	NoRepeatNotice map[string]string   `yaml:"noRepeatNotice"`
}

// Seed provides the built-in English/Spanish phrasebook.
func Seed() Phrasebook {
	return Phrasebook{
		Pairs: []Pair{
			{"English": "hello", "Spanish": "hola"},
			{"English": "how are you", "Spanish": "cómo estás"},
			{"English": "good morning", "Spanish": "buenos días"},
			{"English": "good afternoon", "Spanish": "buenas tardes"},
			{"English": "good evening", "Spanish": "buenas noches"},
			{"English": "thank you", "Spanish": "gracias"},
			{"English": "you are welcome", "Spanish": "de nada"},
			{"English": "please", "Spanish": "por favor"},
			{"English": "excuse me", "Spanish": "disculpe"},
			{"English": "i am sorry", "Spanish": "lo siento"},
			{"English": "repeat that", "Spanish": "repite eso"},
		},
		Repeat: map[string][]string{
			"English": {"repeat that"},
			"Spanish": {"repite eso"},
		},
		NoRepeatNotice: map[string]string{
			"English": "No previous doctor utterance to repeat.",
			"Spanish": "No hay mensaje previo del doctor para repetir.",
		},
	}
}
