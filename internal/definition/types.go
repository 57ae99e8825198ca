package definition

// Default chain configuration values applied when a definition omits them.
const (
	DefaultMaxChainLength    = 20
	DefaultGlobalTimeoutSecs = 300
)

// ChainConfig controls how a chain executes.
type ChainConfig struct {
	MaxChainLength          int  `yaml:"maxChainLength" json:"maxChainLength"`
	GlobalTimeoutSecs       int  `yaml:"globalTimeoutSecs" json:"globalTimeoutSecs"`
	EnableParallelExecution bool `yaml:"enableParallelExecution" json:"enableParallelExecution"`
}

// RetryConfig holds per-link retry settings. A link without one is attempted
// exactly once.
type RetryConfig struct {
	MaxAttempts   int   `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffSecs   int   `yaml:"backoffSecs" json:"backoffSecs"`
	ExcludeStatus []int `yaml:"excludeStatus,omitempty" json:"excludeStatus,omitempty"`
}

// AuthConfig describes authentication applied to every outgoing link request.
type AuthConfig struct {
	Type        string            `yaml:"type" json:"type"`
	Credentials map[string]string `yaml:"credentials,omitempty" json:"credentials,omitempty"`
}

// RequestSpec defines the HTTP request a link issues. URL, header values and
// body may contain {{chain.<name>.<path>}} placeholders resolved at dispatch.
type RequestSpec struct {
	ID             string            `yaml:"id" json:"id"`
	Method         string            `yaml:"method" json:"method"`
	URL            string            `yaml:"url" json:"url"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body           any               `yaml:"body,omitempty" json:"body,omitempty"`
	DependsOn      []string          `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	TimeoutSecs    int               `yaml:"timeoutSecs,omitempty" json:"timeoutSecs,omitempty"`
	ExpectedStatus []int             `yaml:"expectedStatus,omitempty" json:"expectedStatus,omitempty"`
	Retry          *RetryConfig      `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// Link is one step of a chain: a request plus extraction and storage rules.
type Link struct {
	Request RequestSpec       `yaml:"request" json:"request"`
	Extract map[string]string `yaml:"extract,omitempty" json:"extract,omitempty"`
	StoreAs string            `yaml:"storeAs,omitempty" json:"storeAs,omitempty"`
}

// ChainDefinition is the immutable, validated description of a chain. It is
// created once and never mutated by executions.
type ChainDefinition struct {
	ID            string            `yaml:"id,omitempty" json:"id,omitempty"`
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	Config        ChainConfig       `yaml:"config,omitempty" json:"config"`
	Links         []Link            `yaml:"links" json:"links"`
	Variables     map[string]any    `yaml:"variables,omitempty" json:"variables,omitempty"`
	Tags          []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Enabled       *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Auth          *AuthConfig       `yaml:"auth,omitempty" json:"auth,omitempty"`
	TLSSkipVerify bool              `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`
}

// IsEnabled reports whether the chain may be executed. Definitions that do not
// say otherwise are enabled.
func (d *ChainDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ApplyDefaults fills unset config fields with the package defaults.
func (d *ChainDefinition) ApplyDefaults() {
	if d.Config.MaxChainLength <= 0 {
		d.Config.MaxChainLength = DefaultMaxChainLength
	}
	if d.Config.GlobalTimeoutSecs <= 0 {
		d.Config.GlobalTimeoutSecs = DefaultGlobalTimeoutSecs
	}
}

// LinkByID returns the link whose request id matches, or nil.
func (d *ChainDefinition) LinkByID(id string) *Link {
	for i := range d.Links {
		if d.Links[i].Request.ID == id {
			return &d.Links[i]
		}
	}
	return nil
}
