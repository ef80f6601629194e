package models

// Tab selects which derived view the dashboard renders.
type Tab string

const (
	TabDashboard Tab = "dashboard"
	TabDues      Tab = "dues"
	TabAccounts  Tab = "accounts"
)

// ParseTab reports whether raw names a known tab.
func ParseTab(raw string) (Tab, bool) {
	switch Tab(raw) {
	case TabDashboard, TabDues, TabAccounts:
		return Tab(raw), true
	default:
		return "", false
	}
}

// ViewStatus tells the front end which top-level screen to show.
type ViewStatus string

const (
	ViewLoadingUser ViewStatus = "loading-user"
	ViewSignedOut   ViewStatus = "signed-out"
	ViewLoading     ViewStatus = "loading"
	ViewError       ViewStatus = "error"
	ViewReady       ViewStatus = "ready"
)

// Modal is the entry form state. Editing is false for a new record.
type Modal struct {
	Editing bool        `json:"editing"`
	Form    Consignment `json:"form"`
}

// View is everything needed to render one frame of the dashboard.
type View struct {
	Version       uint64             `json:"version"`
	Status        ViewStatus         `json:"status"`
	Identity      *Identity          `json:"identity,omitempty"`
	Tab           Tab                `json:"tab"`
	Month         string             `json:"month"`
	Error         string             `json:"error,omitempty"`
	Modal         *Modal             `json:"modal,omitempty"`
	PendingDelete string             `json:"pendingDelete,omitempty"`
	Dashboard     *DashboardView     `json:"dashboard,omitempty"`
	Dues          *DueSummary        `json:"dues,omitempty"`
	Accounts      *AccountingSummary `json:"accounts,omitempty"`
}
