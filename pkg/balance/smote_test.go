package balance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

func imbalanced() ([][]float64, []string) {
	var X [][]float64
	var y []string
	for i := 0; i < 20; i++ {
		X = append(X, []float64{float64(i), 0})
		y = append(y, "major")
	}
	for i := 0; i < 8; i++ {
		X = append(X, []float64{100 + float64(i), 10})
		y = append(y, "minor")
	}
	return X, y
}

func TestResampleBalancesClasses(t *testing.T) {
	X, y := imbalanced()
	s := NewSMOTE(5, 42)

	bx, by, err := s.Resample(X, y)
	require.NoError(t, err)

	counts := ClassCounts(by)
	assert.Equal(t, 20, counts["major"])
	assert.Equal(t, 20, counts["minor"])
	assert.Len(t, bx, 40)

	// originals come first and are untouched
	assert.Equal(t, X, bx[:len(X)])
	assert.Equal(t, y, by[:len(y)])

	// synthetic minority points lie on segments inside the minority cluster
	for i := len(X); i < len(bx); i++ {
		assert.Equal(t, "minor", by[i])
		assert.GreaterOrEqual(t, bx[i][0], 100.0)
		assert.LessOrEqual(t, bx[i][0], 107.0)
		assert.Equal(t, 10.0, bx[i][1])
	}
}

func TestResampleDeterministic(t *testing.T) {
	X, y := imbalanced()
	ax, ay, err := NewSMOTE(5, 7).Resample(X, y)
	require.NoError(t, err)
	bx, by, err := NewSMOTE(5, 7).Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, ax, bx)
	assert.Equal(t, ay, by)
}

func TestResampleDoesNotMutateInput(t *testing.T) {
	X, y := imbalanced()
	before := make([][]float64, len(X))
	for i := range X {
		before[i] = append([]float64(nil), X[i]...)
	}
	_, _, err := NewSMOTE(5, 1).Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, before, X)
	assert.Len(t, y, 28)
}

func TestInsufficientClassData(t *testing.T) {
	X, y := imbalanced()
	X = append(X, []float64{50, 5}, []float64{51, 5}, []float64{52, 5})
	y = append(y, "tiny", "tiny", "tiny")

	_, _, err := NewSMOTE(5, 42).Resample(X, y)
	require.ErrorIs(t, err, models.ErrInsufficientClassData)
	assert.Contains(t, err.Error(), `"tiny"`)
}

func TestResampleAlreadyBalanced(t *testing.T) {
	bal := [][]float64{}
	labels := []string{}
	for i := 0; i < 6; i++ {
		bal = append(bal, []float64{float64(i)})
		labels = append(labels, "a")
		bal = append(bal, []float64{float64(i) + 10})
		labels = append(labels, "b")
	}
	bx, by, err := NewSMOTE(5, 1).Resample(bal, labels)
	require.NoError(t, err)
	assert.Len(t, bx, 12)
	assert.Equal(t, labels, by)
}

func TestCheckClassCountsIgnoresMajorityClasses(t *testing.T) {
	s := NewSMOTE(5, 1)

	// two tied majority classes smaller than K+1 need no neighbours
	require.NoError(t, s.CheckClassCounts([]string{"a", "a", "a", "b", "b", "b"}))

	err := s.CheckClassCounts([]string{"a", "a", "a", "b", "b"})
	require.ErrorIs(t, err, models.ErrInsufficientClassData)
	assert.Contains(t, err.Error(), `"b"`)
	assert.NotContains(t, err.Error(), `"a"`)

	bx, by, err := s.Resample([][]float64{{0}, {1}, {2}}, []string{"a", "a", "b"})
	require.ErrorIs(t, err, models.ErrInsufficientClassData)
	assert.Nil(t, bx)
	assert.Nil(t, by)
}

func TestNewSMOTEDefaultsNeighbors(t *testing.T) {
	assert.Equal(t, DefaultNeighbors, NewSMOTE(0, 1).K)
	assert.Equal(t, 3, NewSMOTE(3, 1).K)
}
