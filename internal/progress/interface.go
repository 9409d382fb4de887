package progress

// Kind is the terminal state a fragment is finished with.
type Kind int

const (
	KindSucceeded Kind = iota + 1
	KindFailed
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome is the single status line that replaces a fragment's body.
type Outcome struct {
	Kind Kind
	Line string
}

// Presenter owns the progress container: one fragment per upload slot.
type Presenter interface {
	// Remove discards every fragment currently shown for slot.
	// Fragments returned earlier for that slot ignore further calls.
	Remove(slot string)

	// Add appends a fragment for slot showing name, 0% and a cancel control.
	// A negative size means the total length is unknown.
	Add(slot, name string, size int64) Fragment
}

// Fragment is one upload's row in the container.
// After Finish, or after its slot was removed, every call is ignored.
type Fragment interface {
	// SetPercent updates the percent label and the fill width.
	SetPercent(percent int)

	// Finish replaces the fragment's body, cancel control included,
	// with a single status line.
	Finish(outcome Outcome)
}

// Discard is a fragment that renders nowhere.
var Discard Fragment = discard{}

type discard struct{}

func (discard) SetPercent(int)  {}
func (discard) Finish(Outcome) {}

// Multi fans presenter calls out to several presenters.
type Multi []Presenter

// Remove implements Presenter.
func (m Multi) Remove(slot string) {
	for _, p := range m {
		p.Remove(slot)
	}
}

// Add implements Presenter.
func (m Multi) Add(slot, name string, size int64) Fragment {
	frags := make(multiFragment, 0, len(m))
	for _, p := range m {
		frags = append(frags, p.Add(slot, name, size))
	}
	return frags
}

type multiFragment []Fragment

func (f multiFragment) SetPercent(percent int) {
	for _, frag := range f {
		frag.SetPercent(percent)
	}
}

func (f multiFragment) Finish(outcome Outcome) {
	for _, frag := range f {
		frag.Finish(outcome)
	}
}

// clampPercent bounds percent to [0, 100].
func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
