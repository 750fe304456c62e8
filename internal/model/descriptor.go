package model

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// JobDescriptor is one configured unit of acquire-transform-persist work.
// Many descriptors live in one configuration file; files are re-discovered
// on every run because the previous run may have renamed them.
type JobDescriptor struct {
	Enabled    bool         `yaml:"enabled" json:"enabled"`
	Service    string       `yaml:"servicio" json:"servicio"`
	SubService string       `yaml:"sub_servicio" json:"sub_servicio"`
	Downloader *FetchSpec   `yaml:"downloader" json:"downloader"`
	Processor  *ProcessSpec `yaml:"processor,omitempty" json:"processor,omitempty"`
	Upload     *UploadSpec  `yaml:"upload,omitempty" json:"upload,omitempty"`
	SQLExec    *SQLExecSpec `yaml:"sql_exec,omitempty" json:"sql_exec,omitempty"`
}

// Identity is the "servicio - sub_servicio" label used in logs, summaries
// and traceback artifact names.
func (d JobDescriptor) Identity() string {
	return d.Service + " - " + d.SubService
}

// Validate checks the structural fields shared by every job. Capability
// specific parameters are validated by the capability itself.
func (d JobDescriptor) Validate() error {
	if d.Service == "" {
		return &ConfigError{Msg: "servicio must be provided"}
	}
	if d.SubService == "" {
		return &ConfigError{Msg: "sub_servicio must be provided"}
	}
	if d.Downloader == nil {
		return &ConfigError{Msg: "downloader must be provided"}
	}
	if d.Downloader.Name == "" {
		return &ConfigError{Msg: "downloader name must be provided"}
	}
	return nil
}

// FetchSpec selects an acquisition capability and carries its parameters.
// The field set is the union of what the concrete capabilities accept;
// each capability validates the subset it needs.
type FetchSpec struct {
	Name string `yaml:"name" json:"name"`

	// destination naming
	RootDownloadDir   string `yaml:"root_download_dir" json:"root_download_dir"`
	AddDownloaderName bool   `yaml:"add_downloader_name" json:"add_downloader_name"`
	AddOriginalName   bool   `yaml:"add_original_name" json:"add_original_name"`
	AddTimestamp      bool   `yaml:"add_timestamp" json:"add_timestamp"`
	AddFullTimestamp  bool   `yaml:"add_full_timestamp" json:"add_full_timestamp"`
	Timezone          string `yaml:"tz" json:"tz"`

	// date range
	DateStart     string `yaml:"fecha_ini" json:"fecha_ini,omitempty"`
	DateEnd       string `yaml:"fecha_fin" json:"fecha_fin,omitempty"`
	DateDays      int    `yaml:"fecha_dias" json:"fecha_dias,omitempty"`
	DateThreshold int    `yaml:"fecha_threshold" json:"fecha_threshold,omitempty"`

	// browser session
	Headless bool `yaml:"headless" json:"headless"`
	SlowMoMS int  `yaml:"slow_mo" json:"slow_mo"`
	Trace    bool `yaml:"trace_pw" json:"trace_pw"`

	// localpath / localfolder
	LocalFullPath string `yaml:"local_fullpath" json:"local_fullpath,omitempty"`

	// internaldash
	ServiceID  FlexString `yaml:"servicio_id" json:"servicio_id,omitempty"`
	ReportType string     `yaml:"tipo_reporte" json:"tipo_reporte,omitempty"`
	Encoding   string     `yaml:"encoding" json:"encoding,omitempty"`

	// qualtrics / feedbackIntranet
	DashID   string     `yaml:"dash_id" json:"dash_id,omitempty"`
	DashPage FlexString `yaml:"dash_page" json:"dash_page,omitempty"`
	User     string     `yaml:"user" json:"user,omitempty"`
	Password string     `yaml:"password" json:"-"`
}

// UnmarshalYAML applies the capability defaults before decoding.
func (s *FetchSpec) UnmarshalYAML(value *yaml.Node) error {
	type rawFetchSpec FetchSpec
	raw := rawFetchSpec{
		RootDownloadDir:   "./data",
		AddDownloaderName: true,
		AddTimestamp:      true,
		Timezone:          DefaultTimezone,
		Headless:          true,
		SlowMoMS:          1500,
		Encoding:          "utf8",
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = FetchSpec(raw)
	return nil
}

// RangeSpec extracts the date-range fields for the resolver.
func (s FetchSpec) RangeSpec() RangeSpec {
	return RangeSpec{
		Start:     s.DateStart,
		End:       s.DateEnd,
		Days:      s.DateDays,
		Threshold: s.DateThreshold,
	}
}

// ProcessSpec selects a transform capability, its reader parameters and the
// ordered cleaning steps applied after the read.
type ProcessSpec struct {
	Name      string        `yaml:"name" json:"name"`
	SkipRows  int           `yaml:"skip_rows" json:"skip_rows,omitempty"`
	SheetName FlexString    `yaml:"sheet_name" json:"sheet_name,omitempty"`
	Separator string        `yaml:"separator" json:"separator,omitempty"`
	Encoding  string        `yaml:"encoding" json:"encoding,omitempty"`
	Cleaning  CleaningSteps `yaml:"cleaning" json:"cleaning,omitempty"`
}

// UnmarshalYAML applies the reader defaults before decoding.
func (s *ProcessSpec) UnmarshalYAML(value *yaml.Node) error {
	type rawProcessSpec ProcessSpec
	raw := rawProcessSpec{
		Separator: ",",
		Encoding:  "utf8",
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = ProcessSpec(raw)
	return nil
}

// UploadSpec carries the relational-sink parameters. Every column is
// written as VARCHAR(VarcharSize).
type UploadSpec struct {
	Database    string `yaml:"database" json:"database"`
	Table       string `yaml:"table" json:"table,omitempty"`
	IfExists    string `yaml:"if_exists" json:"if_exists"` // replace, append, fail
	Schema      string `yaml:"schema" json:"schema"`
	VarcharSize int    `yaml:"varchar_size" json:"varchar_size"`

	// training-consolidation transform targets
	TableRampasBD         string `yaml:"table_rampas_bd" json:"table_rampas_bd,omitempty"`
	TableRampasAsistencia string `yaml:"table_rampas_asistencia" json:"table_rampas_asistencia,omitempty"`
	TableRampasDetalle    string `yaml:"table_rampas_detalle" json:"table_rampas_detalle,omitempty"`
}

// UnmarshalYAML applies the sink defaults before decoding.
func (s *UploadSpec) UnmarshalYAML(value *yaml.Node) error {
	type rawUploadSpec UploadSpec
	raw := rawUploadSpec{
		IfExists:    "replace",
		Schema:      "dbo",
		VarcharSize: 2500,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = UploadSpec(raw)
	return nil
}

// SQLExecSpec names SQL script files (resolved inside the protected scripts
// directory) and raw queries to execute after a job's upload.
type SQLExecSpec struct {
	Database string      `yaml:"database" json:"database"`
	Files    FlexStrings `yaml:"sql_file" json:"sql_file,omitempty"`
	Queries  FlexStrings `yaml:"sql_query" json:"sql_query,omitempty"`
}

// CleaningStep is one named operation, optionally parameterized. Params is
// kept as the raw node so each operation can decode its own shape.
type CleaningStep struct {
	Name   string
	Params *yaml.Node
}

// CleaningSteps decodes the cleaning list: items are either a bare
// operation name or a mapping of operation name to parameters. A mapping
// with several keys contributes one step per key, in document order.
type CleaningSteps []CleaningStep

func (c *CleaningSteps) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("cleaning must be a list")
	}
	steps := make(CleaningSteps, 0, len(value.Content))
	for _, item := range value.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			steps = append(steps, CleaningStep{Name: item.Value})
		case yaml.MappingNode:
			for i := 0; i+1 < len(item.Content); i += 2 {
				steps = append(steps, CleaningStep{
					Name:   item.Content[i].Value,
					Params: item.Content[i+1],
				})
			}
		default:
			return fmt.Errorf("cleaning step must be a name or a name-to-params mapping")
		}
	}
	*c = steps
	return nil
}

// FlexString accepts any YAML scalar (string or number) as a string.
type FlexString string

func (s *FlexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected a scalar, got %s", value.Tag)
	}
	*s = FlexString(value.Value)
	return nil
}

func (s FlexString) String() string { return string(s) }

// FlexStrings accepts a single YAML scalar or a sequence of scalars.
type FlexStrings []string

func (s *FlexStrings) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = FlexStrings{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(FlexStrings, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("expected a scalar list item, got %s", item.Tag)
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	}
	return fmt.Errorf("expected a scalar or a list, got %s", value.Tag)
}
