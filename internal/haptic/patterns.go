// ABOUTME: Haptic pattern definitions and the default pattern library
// ABOUTME: Envelopes alternate vibrate and pause segments in milliseconds
package haptic

import "time"

// Category groups patterns by the feedback they express
type Category string

const (
	CategorySuccess     Category = "success"
	CategoryError       Category = "error"
	CategoryNavigation  Category = "navigation"
	CategoryInteraction Category = "interaction"
	CategoryInfo        Category = "info"
)

// Pattern is an immutable vibration pattern
type Pattern struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	LocalName string          `json:"local_name" yaml:"local_name"`
	Category  Category        `json:"category" yaml:"category"`
	Envelope  []time.Duration `json:"envelope" yaml:"envelope"`
	Intensity float64         `json:"intensity" yaml:"intensity"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// TotalDuration is the declared duration, or the envelope sum when unset
func (p Pattern) TotalDuration() time.Duration {
	if p.Duration > 0 {
		return p.Duration
	}
	var total time.Duration
	for _, d := range p.Envelope {
		total += d
	}
	return total
}

func ms(values ...int) []time.Duration {
	out := make([]time.Duration, len(values))
	for i, v := range values {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

// DefaultPatterns returns the built-in library
func DefaultPatterns() []Pattern {
	return []Pattern{
		{ID: "success-light", Name: "Success Light", LocalName: "Sukces Lekki", Category: CategorySuccess,
			Envelope: ms(50, 50, 50), Intensity: 0.3, Duration: 150 * time.Millisecond},
		{ID: "success-medium", Name: "Success Medium", LocalName: "Sukces Średni", Category: CategorySuccess,
			Envelope: ms(100, 50, 100, 50, 100), Intensity: 0.6, Duration: 400 * time.Millisecond},
		{ID: "success-strong", Name: "Success Strong", LocalName: "Sukces Silny", Category: CategorySuccess,
			Envelope: ms(200, 100, 200, 100, 200, 100, 200), Intensity: 1.0, Duration: 1000 * time.Millisecond},
		{ID: "error-light", Name: "Error Light", LocalName: "Błąd Lekki", Category: CategoryError,
			Envelope: ms(100, 50, 100, 50, 100), Intensity: 0.4, Duration: 350 * time.Millisecond},
		{ID: "error-medium", Name: "Error Medium", LocalName: "Błąd Średni", Category: CategoryError,
			Envelope: ms(150, 100, 150, 100, 150, 100, 150), Intensity: 0.7, Duration: 750 * time.Millisecond},
		{ID: "error-strong", Name: "Error Strong", LocalName: "Błąd Silny", Category: CategoryError,
			Envelope: ms(200, 150, 200, 150, 200, 150, 200, 150, 200), Intensity: 1.0, Duration: 1350 * time.Millisecond},
		{ID: "navigation-light", Name: "Navigation Light", LocalName: "Nawigacja Lekka", Category: CategoryNavigation,
			Envelope: ms(30, 50, 30), Intensity: 0.2, Duration: 110 * time.Millisecond},
		{ID: "navigation-medium", Name: "Navigation Medium", LocalName: "Nawigacja Średnia", Category: CategoryNavigation,
			Envelope: ms(50, 30, 50, 30, 50), Intensity: 0.4, Duration: 210 * time.Millisecond},
		{ID: "interaction-select", Name: "Selection", LocalName: "Wybór", Category: CategoryInteraction,
			Envelope: ms(40, 30, 40), Intensity: 0.3, Duration: 110 * time.Millisecond},
		{ID: "interaction-hover", Name: "Hover", LocalName: "Najechanie", Category: CategoryInteraction,
			Envelope: ms(20), Intensity: 0.1, Duration: 20 * time.Millisecond},
		{ID: "brain-region-select", Name: "Brain Region Selection", LocalName: "Wybór Regionu Mózgu", Category: CategoryInteraction,
			Envelope: ms(60, 40, 60, 40, 60), Intensity: 0.5, Duration: 260 * time.Millisecond},
		{ID: "neurotransmitter-activate", Name: "Neurotransmitter Activation", LocalName: "Aktywacja Neuroprzekaźnika", Category: CategoryInteraction,
			Envelope: ms(80, 60, 80, 60, 80, 60, 80), Intensity: 0.7, Duration: 500 * time.Millisecond},
		{ID: "supplement-apply", Name: "Supplement Application", LocalName: "Zastosowanie Suplementu", Category: CategoryInteraction,
			Envelope: ms(100, 80, 100, 80, 100, 80, 100, 80, 100), Intensity: 0.8, Duration: 720 * time.Millisecond},
		{ID: "tutorial-step", Name: "Tutorial Step", LocalName: "Krok Samouczka", Category: CategoryInfo,
			Envelope: ms(40, 30, 40, 30, 40, 30, 40), Intensity: 0.4, Duration: 250 * time.Millisecond},
		{ID: "quiz-correct", Name: "Quiz Correct", LocalName: "Quiz Poprawny", Category: CategorySuccess,
			Envelope: ms(60, 40, 60, 40, 60, 40, 60, 40, 60), Intensity: 0.6, Duration: 420 * time.Millisecond},
		{ID: "quiz-incorrect", Name: "Quiz Incorrect", LocalName: "Quiz Niepoprawny", Category: CategoryError,
			Envelope: ms(150, 100, 150, 100, 150), Intensity: 0.5, Duration: 550 * time.Millisecond},
		{ID: "system-ready", Name: "System Ready", LocalName: "System Gotowy", Category: CategoryInfo,
			Envelope: ms(100, 50, 100, 50, 100, 50, 100), Intensity: 0.6, Duration: 450 * time.Millisecond},
	}
}
