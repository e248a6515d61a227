package guardian

import "fmt"

// Kind names a Decision variant. It is used for logging, metrics and persistence.
type Kind string

// Decision kinds.
const (
	KindAutoMerge Kind = "auto-merge"
	KindEscalate  Kind = "escalate"
	KindBlocked   Kind = "blocked"
)

// Decision is the verdict for one change set: exactly one of AutoMerge, Escalate or Blocked.
// The unexported method closes the set of implementations to this package.
type Decision interface {
	Kind() Kind
	String() string
	decision()
}

// AutoMerge means the change may be merged without a human.
type AutoMerge struct {
	Confidence int
}

// Escalate means confidence fell short of the threshold and a human must decide.
type Escalate struct {
	Confidence int
	Threshold  int
}

// Blocked means a hard override forbids auto-merge regardless of confidence.
type Blocked struct {
	Reason string
}

func (AutoMerge) decision() {}
func (Escalate) decision()  {}
func (Blocked) decision()   {}

// Kind returns KindAutoMerge.
func (AutoMerge) Kind() Kind { return KindAutoMerge }

// Kind returns KindEscalate.
func (Escalate) Kind() Kind { return KindEscalate }

// Kind returns KindBlocked.
func (Blocked) Kind() Kind { return KindBlocked }

func (d AutoMerge) String() string {
	return fmt.Sprintf("auto-merge (confidence %d)", d.Confidence)
}

func (d Escalate) String() string {
	return fmt.Sprintf("escalate (confidence %d < threshold %d)", d.Confidence, d.Threshold)
}

func (d Blocked) String() string {
	return fmt.Sprintf("blocked: %s", d.Reason)
}

// Confidence extracts the confidence carried by d. Blocked decisions carry none.
func Confidence(d Decision) (int, bool) {
	switch v := d.(type) {
	case AutoMerge:
		return v.Confidence, true
	case Escalate:
		return v.Confidence, true
	default:
		return 0, false
	}
}
