package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleDescriptors = `
- enabled: true
  servicio: atencion
  sub_servicio: calidad
  downloader:
    name: internaldash
    servicio_id: 42
    tipo_reporte: fijo
    fecha_dias: 7
  processor:
    name: csv
    separator: ";"
    cleaning:
      - trim_column_names
      - normalize_column_names
      - replace_values:
          old_values: ["Sí"]
          new_values: ["SI"]
          columns: ESTADO
  upload:
    database: reporting
    table: atencion_calidad
- enabled: false
  servicio: ventas
  sub_servicio: hogar
  downloader:
    name: localpath
    local_fullpath: /mnt/share/ventas.xlsx
    add_timestamp: false
  sql_exec:
    database: reporting
    sql_file: refresh_ventas.sql
`

func TestJobDescriptor_DecodeDocument(t *testing.T) {
	var jobs []JobDescriptor
	require.NoError(t, yaml.Unmarshal([]byte(sampleDescriptors), &jobs))
	require.Len(t, jobs, 2)

	first := jobs[0]
	assert.True(t, first.Enabled)
	assert.Equal(t, "atencion - calidad", first.Identity())
	require.NotNil(t, first.Downloader)
	assert.Equal(t, "internaldash", first.Downloader.Name)
	assert.Equal(t, "42", first.Downloader.ServiceID.String())
	assert.Equal(t, 7, first.Downloader.DateDays)

	require.NotNil(t, first.Processor)
	assert.Equal(t, ";", first.Processor.Separator)
	require.Len(t, first.Processor.Cleaning, 3)
	assert.Equal(t, "trim_column_names", first.Processor.Cleaning[0].Name)
	assert.Nil(t, first.Processor.Cleaning[0].Params)
	assert.Equal(t, "replace_values", first.Processor.Cleaning[2].Name)
	assert.NotNil(t, first.Processor.Cleaning[2].Params)

	second := jobs[1]
	assert.False(t, second.Enabled)
	assert.False(t, second.Downloader.AddTimestamp)
	require.NotNil(t, second.SQLExec)
	assert.Equal(t, FlexStrings{"refresh_ventas.sql"}, second.SQLExec.Files)
}

func TestFetchSpec_Defaults(t *testing.T) {
	var spec FetchSpec
	require.NoError(t, yaml.Unmarshal([]byte(`name: localpath`), &spec))

	assert.Equal(t, "./data", spec.RootDownloadDir)
	assert.True(t, spec.AddDownloaderName)
	assert.False(t, spec.AddOriginalName)
	assert.True(t, spec.AddTimestamp)
	assert.False(t, spec.AddFullTimestamp)
	assert.Equal(t, DefaultTimezone, spec.Timezone)
	assert.True(t, spec.Headless)
	assert.Equal(t, 1500, spec.SlowMoMS)
	assert.False(t, spec.Trace)
}

func TestUploadSpec_Defaults(t *testing.T) {
	var spec UploadSpec
	require.NoError(t, yaml.Unmarshal([]byte(`{database: reporting, table: t}`), &spec))

	assert.Equal(t, "replace", spec.IfExists)
	assert.Equal(t, "dbo", spec.Schema)
	assert.Equal(t, 2500, spec.VarcharSize)
}

func TestCleaningSteps_MultiKeyMappingExpands(t *testing.T) {
	var steps CleaningSteps
	doc := `
- trim_column_names
- truncate_column_names:
    length: 50
  remove_duplicate_rows:
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &steps))
	require.Len(t, steps, 3)
	assert.Equal(t, "trim_column_names", steps[0].Name)
	assert.Equal(t, "truncate_column_names", steps[1].Name)
	assert.Equal(t, "remove_duplicate_rows", steps[2].Name)
}

func TestFlexStrings_ScalarAndList(t *testing.T) {
	var single FlexStrings
	require.NoError(t, yaml.Unmarshal([]byte(`solo.sql`), &single))
	assert.Equal(t, FlexStrings{"solo.sql"}, single)

	var many FlexStrings
	require.NoError(t, yaml.Unmarshal([]byte(`[a.sql, b.sql]`), &many))
	assert.Equal(t, FlexStrings{"a.sql", "b.sql"}, many)

	var bad FlexStrings
	assert.Error(t, yaml.Unmarshal([]byte(`{k: v}`), &bad))
}

func TestJobDescriptor_Validate(t *testing.T) {
	valid := JobDescriptor{
		Service:    "svc",
		SubService: "sub",
		Downloader: &FetchSpec{Name: "localpath"},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		job  JobDescriptor
		want string
	}{
		{
			name: "missing servicio",
			job:  JobDescriptor{SubService: "sub", Downloader: &FetchSpec{Name: "x"}},
			want: "servicio must be provided",
		},
		{
			name: "missing sub_servicio",
			job:  JobDescriptor{Service: "svc", Downloader: &FetchSpec{Name: "x"}},
			want: "sub_servicio must be provided",
		},
		{
			name: "missing downloader",
			job:  JobDescriptor{Service: "svc", SubService: "sub"},
			want: "downloader must be provided",
		},
		{
			name: "missing downloader name",
			job:  JobDescriptor{Service: "svc", SubService: "sub", Downloader: &FetchSpec{}},
			want: "downloader name must be provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
