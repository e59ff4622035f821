package policy

// Action is one element of a rule's action list (§3): drop (by absence),
// punt to controller, a header-modification bundle, or a count-bucket
// registration.
type Action interface {
	isAction()
}

// Drop is the sentinel stripped out by the classifier pipeline's "remove
// drops" step; a rule whose actions become empty after stripping installs
// as a drop-by-absence rule.
type Drop struct{}

func (Drop) isAction() {}

// Controller is the sentinel meaning "punt to controller". Its presence in
// a rule's action list supersedes every other action (§4.4 step 4).
type Controller struct{}

func (Controller) isAction() {}

// Modify sets the listed header fields on a matched packet.
type Modify struct {
	Fields map[string]interface{}
}

func (Modify) isAction() {}

// Empty reports whether this modify bundle sets no fields (§4.4 step 6
// keeps only non-empty modify maps).
func (m Modify) Empty() bool { return len(m.Fields) == 0 }

// Bucket is the out-of-band traffic-accounting collector a CountBucket
// action registers a rule's predicate with. The pipeline treats it
// opaquely: it records predicates and strips the action (§4.4 step 5).
type Bucket struct {
	Name string
}

// CountBucket references a Bucket that should see traffic matching the
// rule it is attached to.
type CountBucket struct {
	Bucket *Bucket
}

func (CountBucket) isAction() {}

// SendToController is the single concrete action form the backend ever
// observes for a punt (§6): {send_to_controller: 0}.
type SendToController struct{}

func (SendToController) isAction() {}
