package form

import "time"

// Config defines how the form is walked. Values will be taken from the
// formwalk configuration file or environment variables or both.
type Config struct {
	FormSelector string         `yaml:"form_selector" env-default:"form"`
	FormTimeout  time.Duration  `yaml:"form_timeout" env-default:"10s"`
	FillDelay    time.Duration  `yaml:"fill_delay" env-default:"1s"`
	SubmitDelay  time.Duration  `yaml:"submit_delay" env-default:"5s"`
	DebugDir     string         `yaml:"debug_dir" env:"FORMWALK_DEBUG_DIR" env-default:"."`
	Timing       Timing         `yaml:"timing"`
	Advance      ControlProfile `yaml:"advance"`
	Submit       ControlProfile `yaml:"submit"`
	Choice       ChoiceRules    `yaml:"choice"`
}

// Timing bounds the waits around a stage transition.
type Timing struct {
	SettleTimeout    time.Duration `yaml:"settle_timeout" env-default:"10s"`
	SettleDelay      time.Duration `yaml:"settle_delay" env-default:"3s"`
	PollInterval     time.Duration `yaml:"poll_interval" env-default:"250ms"`
	ScrollDelay      time.Duration `yaml:"scroll_delay" env-default:"1s"`
	PostClickTimeout time.Duration `yaml:"post_click_timeout" env-default:"4s"`
	RecheckDelay     time.Duration `yaml:"recheck_delay" env-default:"2s"`
}

// ControlProfile describes how to find the control that moves the form on.
// Empty selector lists are replaced by the built-in profile as a whole.
type ControlProfile struct {
	Name             string   `yaml:"name"`
	Selectors        []string `yaml:"selectors"`
	Terms            []string `yaml:"terms"`
	FallbackSelector string   `yaml:"fallback_selector"` // empty disables the last-resort pick
	TextScan         bool     `yaml:"text_scan"`
	TextScanSelector string   `yaml:"text_scan_selector"`
	KeyboardFallback bool     `yaml:"keyboard_fallback"`
	// Optional controls that cannot be found are skipped with a warning.
	Optional bool `yaml:"optional"`
}

// ChoiceRules configure the stage where exactly one option has to be selected.
type ChoiceRules struct {
	StageMarker     string        `yaml:"stage_marker" env-default:"/forms/"`
	Selector        string        `yaml:"selector" env-default:"[role='checkbox']"`
	AltSelectors    []string      `yaml:"alt_selectors"`
	PreferredID     string        `yaml:"preferred_id" env:"FORMWALK_CHOICE_ID" env-default:"i85"`
	LabelTerms      []string      `yaml:"label_terms"`
	ValueTerms      []string      `yaml:"value_terms"`
	WaitTimeout     time.Duration `yaml:"wait_timeout" env-default:"20s"`
	PostSelectDelay time.Duration `yaml:"post_select_delay" env-default:"2s"`
}

func DefaultAdvanceProfile() ControlProfile {
	return ControlProfile{
		Name: "next",
		Selectors: []string{
			"div[jsname='OCpkoe']",
			"div[role='button']",
			"span[jsname='V67aGc']",
			"div[data-test-id='next-button']",
			"button[type='button']",
		},
		Terms:            []string{"далее", "next", "continue"},
		FallbackSelector: "div[role='button'], button",
		TextScan:         true,
		TextScanSelector: "body *",
		KeyboardFallback: true,
	}
}

func DefaultSubmitProfile() ControlProfile {
	return ControlProfile{
		Name:             "submit",
		Selectors:        []string{"div[role='button'][jsname='M2UYVd']"},
		Terms:            []string{"отправить", "submit"},
		TextScan:         true,
		TextScanSelector: "div[role='button'] *, button",
		Optional:         true,
	}
}

// SetDefaults fills in the lists that cannot be expressed as struct tag defaults.
func (c *Config) SetDefaults() {
	c.Advance = withProfileDefaults(c.Advance, DefaultAdvanceProfile())
	c.Submit = withProfileDefaults(c.Submit, DefaultSubmitProfile())
	if len(c.Choice.AltSelectors) == 0 {
		c.Choice.AltSelectors = []string{
			"input[type='checkbox']",
			"[aria-checked]",
			"div[data-answer-value]",
			"span[role='checkbox']",
		}
	}
	if len(c.Choice.LabelTerms) == 0 {
		c.Choice.LabelTerms = []string{"леопард", "курьер"}
	}
	if len(c.Choice.ValueTerms) == 0 {
		c.Choice.ValueTerms = []string{"леопард"}
	}
	if c.Choice.Selector == "" {
		c.Choice.Selector = "[role='checkbox']"
	}
	if c.FormSelector == "" {
		c.FormSelector = "form"
	}
}

func withProfileDefaults(p, def ControlProfile) ControlProfile {
	if len(p.Selectors) == 0 {
		return def
	}
	if p.Name == "" {
		p.Name = def.Name
	}
	if len(p.Terms) == 0 {
		p.Terms = def.Terms
	}
	if p.TextScan && p.TextScanSelector == "" {
		p.TextScanSelector = def.TextScanSelector
	}
	return p
}
