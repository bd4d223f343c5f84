package mongodb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	mongodb "github.com/alertql-engine/alertql/engine/builders/mongodb"
	"github.com/alertql-engine/alertql/engine/expr"
)

func TestFieldRef(t *testing.T) {
	assert.Equal(t, "$candidate.jd", mongodb.FieldRef("candidate.jd"))
}

func TestElementRef(t *testing.T) {
	assert.Equal(t, "$$this.jd", mongodb.ElementRef("jd"))
	assert.Equal(t, "$$this.jd", mongodb.ElementRef("this.jd"))
	assert.Equal(t, "$$this", mongodb.ElementRef("this"))
	assert.Equal(t, "$$this.a.b", mongodb.ElementRef("this.a.b"))
}

func TestBuildExpressionArithmetic(t *testing.T) {
	e, err := expr.Parse("candidate.magpsf - candidate.magnr")
	require.NoError(t, err)
	assert.Equal(t,
		bson.M{"$subtract": bson.A{"$candidate.magpsf", "$candidate.magnr"}},
		mongodb.BuildExpression(e))
}

func TestBuildExpressionNested(t *testing.T) {
	e, err := expr.Parse("(candidate.magpsf + 1) / 2.5")
	require.NoError(t, err)
	assert.Equal(t,
		bson.M{"$divide": bson.A{
			bson.M{"$add": bson.A{"$candidate.magpsf", 1}},
			2.5,
		}},
		mongodb.BuildExpression(e))
}

func TestBuildExpressionFunctions(t *testing.T) {
	e, err := expr.Parse("abs(candidate.magpsf)")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$abs": "$candidate.magpsf"}, mongodb.BuildExpression(e))

	e, err = expr.Parse("pow(candidate.fwhm, 2)")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$pow": bson.A{"$candidate.fwhm", 2}}, mongodb.BuildExpression(e))

	// round with one argument gets its default places.
	e, err = expr.Parse("round(candidate.ra)")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$round": bson.A{"$candidate.ra", 0}}, mongodb.BuildExpression(e))

	e, err = expr.Parse("round(candidate.ra, 3)")
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$round": bson.A{"$candidate.ra", 3}}, mongodb.BuildExpression(e))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, 5, mongodb.ParseValue("5"))
	assert.Equal(t, -3, mongodb.ParseValue("-3"))
	assert.Equal(t, 2.5, mongodb.ParseValue("2.5"))
	assert.Equal(t, 5.0, mongodb.ParseValue("5.0"))
	assert.Equal(t, 1e3, mongodb.ParseValue("1e3"))
	assert.Equal(t, "abc", mongodb.ParseValue("abc"))
	assert.Equal(t, "", mongodb.ParseValue(""))
}

func TestRoundClampsDecimals(t *testing.T) {
	assert.Equal(t, bson.M{"$round": bson.A{"$x", 3}}, mongodb.Round("$x", 3))
	assert.Equal(t, bson.M{"$round": bson.A{"$x", 0}}, mongodb.Round("$x", -2))
	assert.Equal(t, bson.M{"$round": bson.A{"$x", 10}}, mongodb.Round("$x", 99))
}
