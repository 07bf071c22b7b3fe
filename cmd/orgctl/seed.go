package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/orgadmin/pkg/orgtree/apiclient"
)

// seedUnit is one node of a seed file; children are created in file order.
type seedUnit struct {
	Name     string     `yaml:"name"`
	Type     string     `yaml:"type"`
	Code     string     `yaml:"code"`
	Children []seedUnit `yaml:"children"`
}

type seedFile struct {
	Version int        `yaml:"version"`
	Units   []seedUnit `yaml:"units"`
}

func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f seedFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if f.Version != 0 && f.Version != 1 {
		return nil, fmt.Errorf("unsupported seed version %d", f.Version)
	}
	if len(f.Units) == 0 {
		return nil, errors.New("seed file has no units")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *seedFile) validate() error {
	codes := map[string]string{}
	var walk func(units []seedUnit, path string) error
	walk = func(units []seedUnit, path string) error {
		for i, u := range units {
			at := fmt.Sprintf("%s[%d]", path, i)
			if strings.TrimSpace(u.Name) == "" {
				return fmt.Errorf("%s: name is required", at)
			}
			if strings.TrimSpace(u.Type) == "" {
				return fmt.Errorf("%s: type is required", at)
			}
			if code := strings.TrimSpace(u.Code); code != "" {
				if prev, ok := codes[code]; ok {
					return fmt.Errorf("%s: code %q already used at %s", at, code, prev)
				}
				codes[code] = at
			}
			if err := walk(u.Children, at+".children"); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(f.Units, "units")
}

// Count is the number of nodes the file describes.
func (f *seedFile) Count() int {
	var count func([]seedUnit) int
	count = func(units []seedUnit) int {
		n := len(units)
		for _, u := range units {
			n += count(u.Children)
		}
		return n
	}
	return count(f.Units)
}

// apply creates units depth first under parentID and reports every created id.
func (f *seedFile) apply(ctx context.Context, orgs *apiclient.OrgClient, parentID *int64, onCreate func(name string, id int64)) error {
	var walk func(units []seedUnit, parent *int64) error
	walk = func(units []seedUnit, parent *int64) error {
		for _, u := range units {
			in := apiclient.CreateRequest{OrgType: u.Type, Name: u.Name, ParentID: parent}
			if code := strings.TrimSpace(u.Code); code != "" {
				in.Code = &code
			}
			node, err := orgs.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("create %q: %w", u.Name, err)
			}
			if onCreate != nil {
				onCreate(u.Name, node.ID)
			}
			id := node.ID
			if err := walk(u.Children, &id); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(f.Units, parentID)
}
