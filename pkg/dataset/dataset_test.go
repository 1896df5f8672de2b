package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/internal/testsupport"
	"github.com/mimir-aip/obesity-tc/pkg/models"
)

const rawCSV = `Gender,Age,Height,Weight,family_history,FAVC,FCVC,NCP,CAEC,SMOKE,CH2O,SCC,FAF,TUE,CALC,MTRANS,Obesity
 Female ,21,1.62,64,yes,no,2.5,3,Sometimes,no,2,no,0,1,no,Public_Transportation,Normal_Weight
Male,23,1.8,77,yes,no,3.5,abc,Sometimes,no,2.4,no,2.6,1,Frequently,Walking,Normal_Weight
Male,27,0,87,no,no,2,3,Sometimes,no,2,no,2,0,no, Walking ,Overweight_Level_I
`

func loadRaw(t *testing.T) *Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(rawCSV))
	require.NoError(t, err)
	return f
}

func TestBMI(t *testing.T) {
	assert.InDelta(t, 24.39, BMI(1.62, 64), 0.005)
	assert.True(t, math.IsNaN(BMI(0, 80)))
	assert.True(t, math.IsNaN(BMI(math.NaN(), 80)))
}

func TestPreprocessorApply(t *testing.T) {
	raw := loadRaw(t)
	f, err := NewPreprocessor("Obesity").Apply(raw)
	require.NoError(t, err)

	// raw frame is untouched
	assert.True(t, raw.Has("Obesity"))
	assert.False(t, raw.Has(models.ColBMI))

	assert.False(t, f.Has("Obesity"))
	assert.True(t, f.Has(models.TargetColumn))
	assert.Equal(t, models.ColBMI, f.Columns()[len(f.Columns())-1])

	gender, _ := f.Column(models.ColGender)
	assert.Equal(t, "Female", gender.Strings[0])
	mtrans, _ := f.Column(models.ColMTRANS)
	assert.Equal(t, "Walking", mtrans.Strings[2])

	// half-to-even rounding and lenient coercion of counters
	fcvc, _ := f.Column(models.ColFCVC)
	require.True(t, fcvc.Numeric)
	assert.Equal(t, []float64{2, 4, 2}, fcvc.Floats)
	ncp, _ := f.Column(models.ColNCP)
	assert.True(t, math.IsNaN(ncp.Floats[1]))
	faf, _ := f.Column(models.ColFAF)
	assert.Equal(t, 3.0, faf.Floats[1])

	bmi, _ := f.Column(models.ColBMI)
	assert.InDelta(t, 24.39, bmi.Floats[0], 0.005)
	assert.True(t, math.IsNaN(bmi.Floats[2]), "zero height yields missing BMI")
}

func TestPreprocessorFeatureOnly(t *testing.T) {
	raw := loadRaw(t)
	raw.Drop("Obesity")

	f, err := NewPreprocessor("Obesity").Apply(raw)
	require.NoError(t, err)
	assert.False(t, f.Has(models.TargetColumn))
	assert.True(t, f.Has(models.ColBMI))
}

func TestPreprocessorIdempotent(t *testing.T) {
	p := NewPreprocessor("Obesity")
	once, err := p.Apply(loadRaw(t))
	require.NoError(t, err)
	twice, err := p.Apply(once)
	require.NoError(t, err)

	var a, b bytes.Buffer
	require.NoError(t, WriteCSV(&a, once))
	require.NoError(t, WriteCSV(&b, twice))
	assert.Equal(t, a.String(), b.String())
}

func TestDeriveBMIRequiresHeight(t *testing.T) {
	raw := loadRaw(t)
	raw.Drop(models.ColHeight)
	_, err := NewPreprocessor("Obesity").Apply(raw)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestInferSchema(t *testing.T) {
	f, err := NewPreprocessor("Obesity").Apply(loadRaw(t))
	require.NoError(t, err)

	schema, err := InferSchema(f, models.TargetColumn)
	require.NoError(t, err)

	assert.Equal(t, []string{"Age", "Height", "Weight", "FCVC", "NCP", "CH2O", "FAF", "TUE", "BMI"}, schema.Numeric)
	assert.Equal(t, []string{"Gender", "family_history", "FAVC", "CAEC", "SMOKE", "SCC", "CALC", "MTRANS"}, schema.Categorical)
	assert.Equal(t, models.TargetColumn, schema.Target)

	_, err = InferSchema(f, "nope")
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestCoerce(t *testing.T) {
	f, err := NewPreprocessor("Obesity").Apply(loadRaw(t))
	require.NoError(t, err)
	schema, err := InferSchema(f, models.TargetColumn)
	require.NoError(t, err)

	require.NoError(t, Coerce(f, schema))
	age, _ := f.Column(models.ColAge)
	assert.True(t, age.Numeric)
	assert.Equal(t, 21.0, age.Floats[0])

	bad := strings.Replace(rawCSV, "Male,23,", "Male,twenty,", 1)
	raw, err := ReadCSV(strings.NewReader(bad))
	require.NoError(t, err)
	g, err := NewPreprocessor("Obesity").Apply(raw)
	require.NoError(t, err)
	assert.ErrorIs(t, Coerce(g, schema), models.ErrSchemaMismatch)

	g.Drop(models.ColSMOKE)
	err = Coerce(g, schema)
	require.ErrorIs(t, err, models.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), models.ColSMOKE)
}

func TestFromQuestionnaires(t *testing.T) {
	q := testsupport.Sample()
	q.Gender = "  Female "
	f, err := NewPreprocessor("").Apply(FromQuestionnaires([]models.Questionnaire{q}))
	require.NoError(t, err)

	assert.Equal(t, 1, f.Len())
	assert.Equal(t, append(append([]string{}, models.InputColumns...), models.ColBMI), f.Columns())
	row := f.Row(0)
	assert.Equal(t, "Female", row[models.ColGender])
	bmi, _ := f.Column(models.ColBMI)
	assert.InDelta(t, 24.39, bmi.Floats[0], 0.005)
}

func TestReadCSVFileMissing(t *testing.T) {
	_, err := ReadCSVFile(filepath.Join(t.TempDir(), "absent.csv"))
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestReadCSVStripsByteOrderMark(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("\ufeff" + rawCSV))
	require.NoError(t, err)
	assert.True(t, f.Has(models.ColGender))
	assert.Equal(t, "Gender", f.Columns()[0])
	assert.Equal(t, 3, f.Len())
}

func TestFrameSelectAndRename(t *testing.T) {
	f := loadRaw(t)
	sub := f.Select([]int{2, 0})
	assert.Equal(t, 2, sub.Len())
	labels, err := sub.Labels("Obesity")
	require.NoError(t, err)
	assert.Equal(t, []string{"Overweight_Level_I", "Normal_Weight"}, labels)

	assert.ErrorIs(t, sub.Rename("missing", "x"), models.ErrSchemaMismatch)
	assert.ErrorIs(t, sub.Rename("Gender", "Age"), models.ErrSchemaMismatch)
	require.NoError(t, sub.Rename("Obesity", models.TargetColumn))
	assert.True(t, sub.Has(models.TargetColumn))

	assert.Error(t, sub.SetNumeric("short", []float64{1}))
}

func TestEnsureFresh(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	dst := filepath.Join(dir, "processed", "out.csv")

	_, err := EnsureFresh(src, dst, "Obesity")
	require.ErrorIs(t, err, models.ErrMissingInput)

	require.NoError(t, os.WriteFile(src, []byte(rawCSV), 0644))

	built, err := EnsureFresh(src, dst, "Obesity")
	require.NoError(t, err)
	assert.True(t, built)

	built, err = EnsureFresh(src, dst, "Obesity")
	require.NoError(t, err)
	assert.False(t, built, "second call with unchanged source is a no-op")

	// touching the source makes the output stale again
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))
	built, err = EnsureFresh(src, dst, "Obesity")
	require.NoError(t, err)
	assert.True(t, built)

	out, err := ReadCSVFile(dst)
	require.NoError(t, err)
	assert.True(t, out.Has(models.TargetColumn))
	assert.True(t, out.Has(models.ColBMI))
	assert.Equal(t, 3, out.Len())
}
