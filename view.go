package audiomix

// Container lays out participant placeholders. Calls only come from the
// session's dispatch goroutine.
type Container interface {
	// Layout arranges entries in a two-column grid, in the given order.
	Layout(entries []Participant)
	// Reload redraws one layer of the container.
	Reload(level int)
	// Update refreshes the info and stats text of a single placeholder.
	Update(entry Participant)
}

// Alerter shows a user-visible message.
type Alerter interface {
	ShowAlert(title, message string)
}

type nopContainer struct{}

func (nopContainer) Layout([]Participant) {}
func (nopContainer) Reload(int)           {}
func (nopContainer) Update(Participant)   {}

type nopAlerter struct{}

func (nopAlerter) ShowAlert(string, string) {}
