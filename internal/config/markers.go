package config

// Markers are the CSS selectors the engine probes. Defaults match the current
// client build; every one can be overridden from raidbot.yaml when the client
// changes.
type Markers struct {
	AutoButton       string   `yaml:"autoButton"`
	AttackButton     string   `yaml:"attackButton"`
	CancelButton     string   `yaml:"cancelButton"`
	InProgress       []string `yaml:"inProgress"`
	ResultScreen     string   `yaml:"resultScreen"`
	EmptyResult      string   `yaml:"emptyResult"`
	RematchFailPopup string   `yaml:"rematchFailPopup"`
	WipePopup        string   `yaml:"wipePopup"`
	WipeIndicator    string   `yaml:"wipeIndicator"`
	RaidEndedPopup   string   `yaml:"raidEndedPopup"`
	PopupDismiss     string   `yaml:"popupDismiss"`
	BlockingPopup    string   `yaml:"blockingPopup"`
	CompletionModal  string   `yaml:"completionModal"`
	LoginSurface     string   `yaml:"loginSurface"`
	HUDRoots         []string `yaml:"hudRoots"`
	TurnDigit        string   `yaml:"turnDigit"`
	Honors           string   `yaml:"honors"`
}

func DefaultMarkers() Markers {
	return Markers{
		AutoButton:       ".btn-auto",
		AttackButton:     ".btn-attack-start.display-on",
		CancelButton:     ".btn-attack-cancel.display-on",
		InProgress:       []string{".btn-attack-start", ".btn-attack-cancel", ".btn-auto", ".prt-command-chara"},
		ResultScreen:     ".prt-result-head",
		EmptyResult:      ".prt-result-empty",
		RematchFailPopup: ".pop-rematch-fail",
		WipePopup:        ".btn-cheer",
		WipeIndicator:    ".prt-member .dead",
		RaidEndedPopup:   ".pop-raid-ended",
		PopupDismiss:     ".btn-usual-ok",
		BlockingPopup:    ".pop-usual.common-pop-error",
		CompletionModal:  ".pop-result-assist-raid",
		LoginSurface:     ".btn-login, #mobage-login",
		HUDRoots:         []string{".prt-turn-info", ".prt-user-honor"},
		TurnDigit:        ".prt-turn-num [class*='num-info']",
		Honors:           ".prt-user-honor .txt-honor",
	}
}

// withDefaults fills every empty selector from the defaults.
func (m Markers) withDefaults() Markers {
	d := DefaultMarkers()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&m.AutoButton, d.AutoButton)
	fill(&m.AttackButton, d.AttackButton)
	fill(&m.CancelButton, d.CancelButton)
	fill(&m.ResultScreen, d.ResultScreen)
	fill(&m.EmptyResult, d.EmptyResult)
	fill(&m.RematchFailPopup, d.RematchFailPopup)
	fill(&m.WipePopup, d.WipePopup)
	fill(&m.WipeIndicator, d.WipeIndicator)
	fill(&m.RaidEndedPopup, d.RaidEndedPopup)
	fill(&m.PopupDismiss, d.PopupDismiss)
	fill(&m.BlockingPopup, d.BlockingPopup)
	fill(&m.CompletionModal, d.CompletionModal)
	fill(&m.LoginSurface, d.LoginSurface)
	fill(&m.TurnDigit, d.TurnDigit)
	fill(&m.Honors, d.Honors)
	if len(m.InProgress) == 0 {
		m.InProgress = d.InProgress
	}
	if len(m.HUDRoots) == 0 {
		m.HUDRoots = d.HUDRoots
	}
	return m
}
