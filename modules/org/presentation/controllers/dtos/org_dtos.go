package dtos

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/constants"
)

// ReorderDTO is the body of POST /reorder. A null parent_id is the root group.
type ReorderDTO struct {
	ParentID *int64  `json:"parent_id" validate:"omitempty,gt=0"`
	OrgIDs   []int64 `json:"org_ids" validate:"required,min=1,dive,gt=0"`
}

func (d *ReorderDTO) Ok() (string, bool) {
	return firstError(constants.Validate.Struct(d))
}

func (d *ReorderDTO) ToOrder() services.SiblingOrder {
	return services.SiblingOrder{ParentID: d.ParentID, IDs: d.OrgIDs}
}

type MoveDTO struct {
	NewParentID *int64 `json:"new_parent_id" validate:"omitempty,gt=0"`
}

func (d *MoveDTO) Ok() (string, bool) {
	return firstError(constants.Validate.Struct(d))
}

type CreateDTO struct {
	OrgType  string  `json:"org_type" validate:"required,max=64"`
	Name     string  `json:"name" validate:"required,max=255"`
	Code     *string `json:"code" validate:"omitempty,max=64"`
	ParentID *int64  `json:"parent_id" validate:"omitempty,gt=0"`
}

func (d *CreateDTO) Normalize() {
	d.OrgType = strings.TrimSpace(d.OrgType)
	d.Name = strings.TrimSpace(d.Name)
	if d.Code != nil {
		code := strings.TrimSpace(*d.Code)
		d.Code = &code
	}
}

func (d *CreateDTO) Ok() (string, bool) {
	d.Normalize()
	return firstError(constants.Validate.Struct(d))
}

func (d *CreateDTO) ToInput() services.CreateNodeInput {
	return services.CreateNodeInput{
		OrgType:  d.OrgType,
		Name:     d.Name,
		Code:     d.Code,
		ParentID: d.ParentID,
	}
}

var jsonFieldNames = map[string]string{
	"ParentID":    "parent_id",
	"OrgIDs":      "org_ids",
	"NewParentID": "new_parent_id",
	"OrgType":     "org_type",
	"Name":        "name",
	"Code":        "code",
}

// firstError renders the first validation failure as "<json field> <rule>".
func firstError(err error) (string, bool) {
	if err == nil {
		return "", true
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return err.Error(), false
	}
	fe := errs[0]
	field := fe.StructField()
	if name, ok := jsonFieldNames[field]; ok {
		field = name
	} else if i := strings.IndexByte(field, '['); i > 0 {
		if name, ok := jsonFieldNames[field[:i]]; ok {
			field = name + field[i:]
		}
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field), false
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param()), false
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param()), false
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param()), false
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag()), false
	}
}
