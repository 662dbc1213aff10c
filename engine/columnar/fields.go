package columnar

import (
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/vecbridge/vecbridge/engine/record"
)

// fieldPlan classifies a collection schema into the three roles the
// marshaling engine works with: the primary key, the vector field, and the
// metadata fields. The first vector field in schema order is the vector
// field; collections with multiple vector fields are not supported.
type fieldPlan struct {
	primary *entity.Field
	vector  *entity.Field
	meta    []*entity.Field
	dim     int
}

func planFields(schema *entity.Schema) (*fieldPlan, error) {
	plan := &fieldPlan{}
	for _, f := range schema.Fields {
		switch {
		case f.PrimaryKey && plan.primary == nil:
			plan.primary = f
		case isVectorType(f.DataType):
			if plan.vector == nil {
				plan.vector = f
			}
		case !f.PrimaryKey:
			plan.meta = append(plan.meta, f)
		}
	}
	if plan.primary == nil {
		return nil, record.ErrNoPrimaryField
	}
	if plan.vector != nil {
		if d, err := strconv.Atoi(plan.vector.TypeParams[entity.TypeParamDim]); err == nil {
			plan.dim = d
		}
	}
	return plan, nil
}

// outputFields lists the fields to request on extraction, in plan order.
func (p *fieldPlan) outputFields() []string {
	out := []string{p.primary.Name}
	if p.vector != nil {
		out = append(out, p.vector.Name)
	}
	for _, f := range p.meta {
		out = append(out, f.Name)
	}
	return out
}

func (p *fieldPlan) metaField(name string) *entity.Field {
	for _, f := range p.meta {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func isVectorType(t entity.FieldType) bool {
	return t == entity.FieldTypeFloatVector || t == entity.FieldTypeBinaryVector
}

// describeSchema translates an entity schema into the normalized descriptor.
func describeSchema(collection string, schema *entity.Schema) *record.Schema {
	out := &record.Schema{Collection: collection}
	for _, f := range schema.Fields {
		field := record.Field{
			Name:    f.Name,
			Kind:    record.KindScalar,
			Primary: f.PrimaryKey,
			Params:  map[string]string{"data_type": dataTypeName(f.DataType)},
		}
		for k, v := range f.TypeParams {
			field.Params[k] = v
		}
		switch {
		case f.PrimaryKey:
			field.Kind = record.KindPrimaryKey
			if out.PrimaryField == "" {
				out.PrimaryField = f.Name
			}
		case isVectorType(f.DataType):
			field.Kind = record.KindVector
		}
		out.Fields = append(out.Fields, field)
	}
	return out
}

func dataTypeName(t entity.FieldType) string {
	switch t {
	case entity.FieldTypeBool:
		return "Bool"
	case entity.FieldTypeInt8:
		return "Int8"
	case entity.FieldTypeInt16:
		return "Int16"
	case entity.FieldTypeInt32:
		return "Int32"
	case entity.FieldTypeInt64:
		return "Int64"
	case entity.FieldTypeFloat:
		return "Float"
	case entity.FieldTypeDouble:
		return "Double"
	case entity.FieldTypeVarChar:
		return "VarChar"
	case entity.FieldTypeString:
		return "String"
	case entity.FieldTypeJSON:
		return "JSON"
	case entity.FieldTypeFloatVector:
		return "FloatVector"
	case entity.FieldTypeBinaryVector:
		return "BinaryVector"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}
