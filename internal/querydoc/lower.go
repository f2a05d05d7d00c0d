package querydoc

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/datamgr/internal/ir"
	"github.com/roach88/datamgr/internal/queryir"
)

// Operator names used in lowered documents.
const (
	OpAnd        = "$and"
	OpOr         = "$or"
	OpIn         = "$in"
	OpNe         = "$ne"
	OpGt         = "$gt"
	OpGte        = "$gte"
	OpLt         = "$lt"
	OpLte        = "$lte"
	OpRegex      = "$regex"
	OpBitsAnySet = "$bitsAnySet"
	OpEq         = "$eq"

	OpExpr         = "$expr"
	OpRegexMatch   = "$regexMatch"
	OpDateToString = "$dateToString"
)

var comparisonOps = map[queryir.Op]string{
	queryir.OpNe:     OpNe,
	queryir.OpLike:   OpRegex,
	queryir.OpBitAnd: OpBitsAnySet,
	queryir.OpGt:     OpGt,
	queryir.OpGte:    OpGte,
	queryir.OpLt:     OpLt,
	queryir.OpLte:    OpLte,
}

// LikeOptions are the regular expression options of lowered LIKE patterns.
const LikeOptions = "is"

// DateFormat renders date fields for LIKE, matching ir.TimeLayout.
const DateFormat = "%Y-%m-%d %H:%M:%S"

// Fields describes how a collection stores its fields.
type Fields interface {
	// Encode converts an equality operand to the stored form of field.
	Encode(field string, v any) any
	// IsDate reports whether field holds BSON dates.
	IsDate(field string) bool
}

// Lower renders f as a query document. An empty or nil filter yields an
// empty bson.D. Lowering never mutates f.
//
//	Lower(queryir.New().Eq("UUID", id).Or("a", 1).Or("b", 2))
//	// {$and: [{UUID: id}, {$or: [{a: 1}, {b: 2}]}]}
func Lower(f *queryir.Filter) bson.D {
	return lowerer{}.lower(f)
}

// LowerFields is Lower with operands in the stored form of their fields.
// Equality, range and $in operands go through fields.Encode; LIKE on a
// date field matches the date rendered with DateFormat.
func LowerFields(f *queryir.Filter, fields Fields) bson.D {
	return lowerer{fields: fields}.lower(f)
}

type lowerer struct {
	fields Fields
}

func (l lowerer) lower(f *queryir.Filter) bson.D {
	clauses := l.clauses(f)
	if len(clauses) == 0 {
		return bson.D{}
	}
	return bson.D{{Key: OpAnd, Value: clauses}}
}

func (l lowerer) clauses(f *queryir.Filter) bson.A {
	if f.Count() == 0 {
		return nil
	}

	var and bson.A
	for _, c := range queryir.Categories {
		conds := l.category(f, c)
		if len(conds) == 0 {
			continue
		}
		if c.Connective() == queryir.ConnOr {
			and = append(and, bson.D{{Key: OpOr, Value: conds}})
			continue
		}
		and = append(and, conds...)
	}
	for _, sub := range f.SubFilters {
		if doc := l.lower(sub); len(doc) > 0 {
			and = append(and, doc)
		}
	}
	return and
}

// category returns one condition document per predicate. Equality multi
// entries collapse into one $in per field; entries without values are
// skipped, as in SQL.
func (l lowerer) category(f *queryir.Filter, c queryir.Category) bson.A {
	var conds bson.A
	for _, e := range f.Entries(c) {
		if len(e.Values) == 0 {
			continue
		}
		if c.Op() == queryir.OpEq && c.Multi() {
			in := make(bson.A, len(e.Values))
			for i, v := range e.Values {
				in[i] = l.operand(e.Field, v)
			}
			conds = append(conds, bson.D{{Key: e.Field, Value: bson.D{{Key: OpIn, Value: in}}}})
			continue
		}
		for _, v := range e.Values {
			if c.Op() == queryir.OpLike && l.isDate(e.Field) {
				pattern, _ := v.(string)
				conds = append(conds, dateLike(e.Field, pattern))
				continue
			}
			conds = append(conds, bson.D{{Key: e.Field, Value: l.condition(c.Op(), e.Field, v)}})
		}
	}
	return conds
}

func (l lowerer) condition(op queryir.Op, field string, v any) any {
	switch op {
	case queryir.OpEq:
		return l.operand(field, v)
	case queryir.OpNe:
		return bson.D{{Key: OpNe, Value: l.operand(field, v)}}
	case queryir.OpLike:
		pattern, _ := v.(string)
		return bson.D{{Key: OpRegex, Value: LikeRegex(pattern)}}
	default:
		return bson.D{{Key: comparisonOps[op], Value: l.operand(field, v)}}
	}
}

func (l lowerer) operand(field string, v any) any {
	if l.fields != nil {
		v = l.fields.Encode(field, v)
	}
	return normalize(v)
}

func (l lowerer) isDate(field string) bool {
	return l.fields != nil && l.fields.IsDate(field)
}

// dateLike matches the LIKE pattern against field rendered with DateFormat.
func dateLike(field, pattern string) bson.D {
	re := LikeRegex(pattern)
	return bson.D{{Key: OpExpr, Value: bson.D{{Key: OpRegexMatch, Value: bson.D{
		{Key: "input", Value: bson.D{{Key: OpDateToString, Value: bson.D{
			{Key: "date", Value: "$" + field},
			{Key: "format", Value: DateFormat},
		}}}},
		{Key: "regex", Value: re.Pattern},
		{Key: "options", Value: re.Options},
	}}}}}
}

// LikeRegex translates an SQL LIKE pattern into an anchored regular
// expression: % matches any run, _ matches one character and everything
// else is literal.
func LikeRegex(pattern string) primitive.Regex {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return primitive.Regex{Pattern: b.String(), Options: LikeOptions}
}

// normalize maps Go scalars onto the cell types shared with the relational
// backends. BSON primitives, and values ir cannot represent, pass through
// for the driver to encode.
func normalize(v any) any {
	switch v.(type) {
	case primitive.DateTime, primitive.ObjectID, primitive.Binary, primitive.Decimal128, primitive.Regex:
		return v
	}
	val, err := ir.FromAny(v)
	if err != nil {
		return v
	}
	return ir.ToAny(val)
}
