package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/manabi/core"
	"github.com/trezcool/manabi/core/material"
	"github.com/trezcool/manabi/core/user"
)

// templateFile is the YAML layout read by importtemplate:
//
//	title: Algebra Basics
//	description: ...
//	nodes:
//	  - title: Chapter 1
//	    children:
//	      - title: Section 1.1
type templateFile struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Nodes       []templateNode `yaml:"nodes"`
}

type templateNode struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Children    []templateNode `yaml:"children"`
}

var errEmptyTemplate = errors.New("template has no title")

func readTemplateFile(path string) (templateFile, error) {
	var tf templateFile
	data, err := os.ReadFile(path)
	if err != nil {
		return tf, errors.Wrap(err, "reading template file")
	}
	if err = yaml.Unmarshal(data, &tf); err != nil {
		return tf, errors.Wrap(err, "parsing template file")
	}
	if core.CleanString(tf.Title) == "" {
		return tf, errEmptyTemplate
	}
	return tf, nil
}

// importTemplate creates a template material and its node tree, children ordered as listed.
func (cli *commandLine) importTemplate(path, by string) error {
	ctx := context.Background()

	tf, err := readTemplateFile(path)
	if err != nil {
		return err
	}

	var editor user.User
	if by != "" {
		if editor, err = cli.usrSvc.GetByUsernameOrEmail(ctx, core.CleanString(by, true /* lower */)); err != nil {
			return errors.Wrapf(err, "finding user %q", by)
		}
		if !editor.IsAdmin() {
			return errors.Errorf("user %q is not an admin", by)
		}
	}

	nm := material.NewMaterial{Title: tf.Title, Description: tf.Description}
	if err = nm.Validate(cli.validate); err != nil {
		return errors.Wrap(err, "invalid template")
	}

	// the template is shared as soon as it is committed: all or nothing
	var (
		tmpl  material.Material
		count int
	)
	err = core.RunInTx(ctx, cli.db, func(exec core.DBExecutor) error {
		var err error
		if tmpl, err = cli.matSvc.CreateTemplate(ctx, nm, editor, exec); err != nil {
			return err
		}

		var create func(parentID string, nodes []templateNode) error
		create = func(parentID string, nodes []templateNode) error {
			for i, tn := range nodes {
				order := i
				nn := material.NewNode{Title: tn.Title, Description: tn.Description, ParentID: parentID, Order: &order}
				if err := nn.Validate(cli.validate); err != nil {
					return errors.Wrapf(err, "invalid node %q", tn.Title)
				}
				n, err := cli.matSvc.CreateNode(ctx, tmpl, nn, editor, exec)
				if err != nil {
					return errors.Wrapf(err, "creating node %q", tn.Title)
				}
				count++
				if err = create(n.ID, tn.Children); err != nil {
					return err
				}
			}
			return nil
		}
		return create("", tf.Nodes)
	})
	if err != nil {
		return errors.Wrapf(err, "importing template %q", tf.Title)
	}

	cli.logger.Info(fmt.Sprintf("template %q imported as %s (%d nodes)", tmpl.Title, tmpl.ID, count))
	return nil
}
