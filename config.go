package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SelectorCatalog maps a named UI landmark to an ordered list of query
// expressions. Order matters: earlier entries are the more reliable ones
// and are always tried first.
type SelectorCatalog map[string][]string

// Group returns the selector group for a landmark. Unknown landmarks
// return nil so callers fail the sweep instead of panicking.
func (c SelectorCatalog) Group(landmark string) []string {
	return c[landmark]
}

type ProxyConfig struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Config struct {
	URL       string `yaml:"url"`
	ExcelPath string `yaml:"excel_path"`

	DownloadDir   string `yaml:"download_dir"`
	LogDir        string `yaml:"log_dir"`
	LogFilePrefix string `yaml:"log_file_prefix"`
	LogLevel      string `yaml:"log_level"`

	Headless   bool `yaml:"headless"`
	MaxWorkers int  `yaml:"max_workers"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	// Availability polling. Cooldowns are whole seconds so the yaml stays
	// readable; zero disables the sleep but the cycle still counts.
	MaxPollCycles          int `yaml:"max_poll_cycles"`
	NoSlotsCooldownSeconds int `yaml:"no_slots_cooldown_seconds"`
	PollIntervalSeconds    int `yaml:"poll_interval_seconds"`
	HistoryBackoffSeconds  int `yaml:"history_backoff_seconds"`

	// StopOnNoSlots aborts the remaining batch on the first SIN_TURNOS
	// result instead of moving on to the next credential.
	StopOnNoSlots bool `yaml:"stop_on_no_slots"`

	// Slot distribution: credential N is pointed at slot index
	// floor(log2(N+1)), capped at MaxSlotIndex.
	MaxSlotIndex int `yaml:"max_slot_index"`

	// Opening schedule of the widget, "HH:MM" local time. When
	// WaitForOpening is set the batch sleeps until the next opening.
	OpeningTimes   []string `yaml:"opening_times"`
	WaitForOpening bool     `yaml:"wait_for_opening"`

	Proxy      ProxyConfig `yaml:"proxy"`
	UserAgents []string    `yaml:"user_agents"`

	// URL fragments identifying the embedded booking widget's frames.
	WidgetHosts []string `yaml:"widget_hosts"`

	NoSlotsTexts []string `yaml:"no_slots_texts"`
	BlockedTexts []string `yaml:"blocked_texts"`

	Selectors SelectorCatalog `yaml:"selectors"`
}

func DefaultConfig() *Config {
	return &Config{
		URL: "https://www.exteriores.gob.es/Consulados/bahiablanca/es/ServiciosConsulares/" +
			"Paginas/Solicitud-de-cita-previa--Ley-de-Memoria-Democr%c3%a1tica.aspx",
		ExcelPath:     "turnos.xlsx",
		DownloadDir:   "downloads",
		LogDir:        "logs",
		LogFilePrefix: "turnero",
		LogLevel:      "info",

		Headless:   false,
		MaxWorkers: 2,

		ViewportWidth:  1300,
		ViewportHeight: 900,

		MaxPollCycles:          50,
		NoSlotsCooldownSeconds: 30,
		PollIntervalSeconds:    3,
		HistoryBackoffSeconds:  0,

		StopOnNoSlots: false,
		MaxSlotIndex:  3,

		OpeningTimes:   []string{"00:10", "01:10", "02:10", "03:10"},
		WaitForOpening: false,

		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36",
		},

		WidgetHosts: []string{"citaconsular", "bookitit"},

		NoSlotsTexts: []string{"no hay horas disponibles", "no tienes ninguna cita"},
		BlockedTexts: []string{"bloqueado", "demasiados intentos"},

		Selectors: DefaultSelectors(),
	}
}

// DefaultSelectors is the built-in landmark catalog for the consular
// widget. The yaml config can override any group; groups left out keep
// these defaults.
func DefaultSelectors() SelectorCatalog {
	return SelectorCatalog{
		"datetime_link": {"text=Fecha y hora"},
		"popup_accept":  {"text=Aceptar"},
		"continue_button": {
			"button:has-text('Continue / Continuar')",
			"text=Continue / Continuar",
			"text=Continuar",
			"a:has-text('Continuar')",
			"#idDivBktServicesContinueButton",
		},
		"login_user": {
			"input[placeholder*='DNI']",
			"input[name='dni']",
			"input#dni",
			"input[name='usuario']",
		},
		"login_password": {
			"#idIptBktAccountLoginpassword",
			"#idIptBktSignInpassword",
			"input[placeholder*='Contraseña']",
			"input[type='password']",
			"input#password",
			"input[name='password']",
		},
		"login_submit": {
			"#idBktDefaultAccountLoginConfirmButton",
			"#idBktDefaultSignInConfirmButton",
			"button:has-text('Acceder')",
			"text=Acceder",
			"button[type='submit']",
		},
		"login_error":  {"text=usuario o contraseña incorrectos"},
		"consult_link": {"text=Cancelar o consultar mis reservas"},
		"back_arrow": {
			"#idBktDefaultAccountLoginContainer .clsDivSubHeaderBackButton",
			"#idBktDefaultAccountHistoryContainer .clsDivSubHeaderBackButton",
			"#idBktDefaultDatetimeContainer .clsDivSubHeaderBackButton",
			"#idBktDefaultSignInContainer .clsDivSubHeaderBackButton",
			"#idBktWidgetBody .clsDivSubHeaderBackButton",
			"div.clsDivSubHeaderBackButton",
			".clsDivSubHeaderBackButton",
			"text=Volver a pedir cita",
			"a[href='#services']",
		},
		"view_history": {
			"text=Ver historial",
			"#idBktWidgetDefaultFooterAccountSignOutAccountContainer a",
		},
		"slot_table": {"table#turnos", ".tabla-turnos"},
		"slot_buttons": {
			".clsDivDatetimeSlot",
			".clsDivDatetimeSlotTime",
			"text=Reservar",
			"text=Seleccionar",
		},
		"service_card": {
			"text=Presentación de documentación ley",
			"text=MEMORIA DEMOCRÁTICA",
			"text=Memoria democrática",
			"#idListServices a",
			".clsBktServiceDataContainer a",
			".clsBktServiceDataContainer",
		},
		"slot_container": {
			"#idDivBktSlotsContainer",
			".clsDivDatetimeSlot",
			".clsDivDatetimeSlotTime",
		},
		"confirm_button":      {"text=Confirmar"},
		"confirmation_banner": {"text=Turno reservado", ".clsDivBktConfirmedContainer"},
		"print_button": {
			"#idDivBktJustConfirmedPrintButton",
			"a:has-text('Imprimir')",
			"text=Imprimir",
			".clsBtnPrint",
		},
		"loaders": {
			".blockUI",
			"div.blockUI",
			".loading",
			".spinner",
			".pace",
			".pace-progress",
			".spinner-border",
			".fa-spinner",
			".lds-spinner",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// A partial selectors block in the yaml replaces the whole catalog,
	// so backfill any groups the file did not mention.
	if config.Selectors == nil {
		config.Selectors = SelectorCatalog{}
	}
	for landmark, group := range DefaultSelectors() {
		if len(config.Selectors[landmark]) == 0 {
			config.Selectors[landmark] = group
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url must not be empty")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", c.MaxWorkers)
	}
	if c.MaxPollCycles < 1 {
		return fmt.Errorf("max_poll_cycles must be at least 1, got %d", c.MaxPollCycles)
	}
	if len(c.UserAgents) == 0 {
		return fmt.Errorf("user_agents must not be empty")
	}
	for landmark, group := range c.Selectors {
		if len(group) == 0 {
			return fmt.Errorf("selector group %q is empty", landmark)
		}
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
