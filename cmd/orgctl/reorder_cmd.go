package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/orgadmin/pkg/orgtree/apiclient"
	"github.com/iota-uz/orgadmin/pkg/orgtree/reorder"
	"github.com/iota-uz/orgadmin/pkg/orgtree/toast"
)

// rowBox stands in for a rendered row: the upper half drops before, the
// lower half after.
var rowBox = reorder.Box{Top: 0, Height: 2}

type reorderOptions struct {
	Before int64
	After  int64
	Parent string
	Order  []int64
}

func newReorderCmd(opts *globalOptions) *cobra.Command {
	var ro reorderOptions

	cmd := &cobra.Command{
		Use:   "reorder (<id> --before <sibling> | <id> --after <sibling> | --parent <id|root> --order a,b,c)",
		Short: "Change the order of siblings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ro.Order) > 0 {
				if len(args) > 0 {
					return withCode(exitUsage, errors.New("--order does not take a node id"))
				}
				return runExplicitOrder(cmd, opts, ro)
			}
			if len(args) != 1 {
				return withCode(exitUsage, errors.New("a node id is required"))
			}
			nodeID, err := parseID(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			return runDrop(cmd, opts, nodeID, ro)
		},
	}
	cmd.Flags().Int64Var(&ro.Before, "before", 0, "sibling to place the node before")
	cmd.Flags().Int64Var(&ro.After, "after", 0, "sibling to place the node after")
	cmd.Flags().StringVar(&ro.Parent, "parent", "", "parent id, or root, for --order")
	cmd.Flags().Int64SliceVar(&ro.Order, "order", nil, "complete new sibling order")
	cmd.MarkFlagsMutuallyExclusive("before", "after", "order")
	return cmd
}

// runDrop replays a drag of nodeID onto a sibling through the reorder
// controller, so the same sibling rules and reconciliation apply.
func runDrop(cmd *cobra.Command, opts *globalOptions, nodeID int64, ro reorderOptions) error {
	target, pointerY := ro.Before, 0.5
	if ro.After != 0 {
		target, pointerY = ro.After, 1.5
	}
	if target == 0 {
		return withCode(exitUsage, errors.New("one of --before or --after is required"))
	}

	ctrl, err := loadController(cmd, opts)
	if err != nil {
		return err
	}
	if err := ctrl.DragStart(nodeID, true); err != nil {
		return withCode(exitUsage, err)
	}
	if hover := ctrl.DragOver(target, pointerY, rowBox); !hover.Valid {
		ctrl.DragEnd()
		return withCode(exitUsage, fmt.Errorf("%d and %d are not siblings", nodeID, target))
	}
	res, err := ctrl.Drop(cmd.Context())
	if err != nil {
		return withCode(exitUsage, err)
	}
	return reportDrop(cmd, opts, res)
}

func runExplicitOrder(cmd *cobra.Command, opts *globalOptions, ro reorderOptions) error {
	parentID, err := parseParent(ro.Parent)
	if err != nil {
		return withCode(exitUsage, err)
	}
	orgs, _, err := opts.connect(cmd, true)
	if err != nil {
		return err
	}
	if err := orgs.Reorder(cmd.Context(), parentID, ro.Order); err != nil {
		return classify(err)
	}
	return reportDrop(cmd, opts, reorder.DropResult{Outcome: reorder.Saved, ParentID: parentID, Order: ro.Order})
}

func newMoveCmd(opts *globalOptions) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "move <id> --parent <id|root>",
		Short: "Move a node under a new parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeID, err := parseID(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			parentID, err := parseParent(parent)
			if err != nil {
				return withCode(exitUsage, err)
			}
			ctrl, err := loadController(cmd, opts)
			if err != nil {
				return err
			}
			res, err := ctrl.MoveInto(cmd.Context(), nodeID, parentID)
			if err != nil {
				return withCode(exitRejected, err)
			}
			return reportDrop(cmd, opts, res)
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "new parent id, or root")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func loadController(cmd *cobra.Command, opts *globalOptions) (*reorder.Controller, error) {
	orgs, logger, err := opts.connect(cmd, true)
	if err != nil {
		return nil, err
	}
	ctrl := reorder.New(reorder.Options{
		Backend:  orgs,
		Notifier: toast.NewLogNotifier(logger),
		Logger:   logger,
	})
	if err := ctrl.Load(cmd.Context()); err != nil {
		return nil, classify(err)
	}
	return ctrl, nil
}

type dropReport struct {
	Outcome  string  `json:"outcome"`
	ParentID *int64  `json:"parent_id"`
	Order    []int64 `json:"order,omitempty"`
}

func reportDrop(cmd *cobra.Command, opts *globalOptions, res reorder.DropResult) error {
	out := cmd.OutOrStdout()
	if opts.JSON {
		if err := writeJSON(out, dropReport{Outcome: res.Outcome.String(), ParentID: res.ParentID, Order: res.Order}); err != nil {
			return err
		}
	} else {
		line := res.Outcome.String()
		if len(res.Order) > 0 {
			line += " " + joinIDs(res.Order)
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	if res.Outcome == reorder.Reconciled {
		return withCode(exitReconciled, errors.New("server rejected the change; tree reloaded"))
	}
	return nil
}

func newCreateCmd(opts *globalOptions) *cobra.Command {
	var in apiclient.CreateRequest
	var code, parent string

	cmd := &cobra.Command{
		Use:   "create --type <type> --name <name> [--code <code>] [--parent <id|root>]",
		Short: "Create a node at the end of its sibling group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parentID, err := parseParent(parent)
			if err != nil {
				return withCode(exitUsage, err)
			}
			in.ParentID = parentID
			if strings.TrimSpace(code) != "" {
				in.Code = &code
			}
			orgs, logger, err := opts.connect(cmd, true)
			if err != nil {
				return err
			}
			node, err := orgs.Create(cmd.Context(), in)
			if err != nil {
				return classify(err)
			}
			logger.WithFields(logrus.Fields{"id": node.ID, "name": node.Name}).Debug("org unit created")
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), node)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", node.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&in.OrgType, "type", "", "org type")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&code, "code", "", "unique code")
	cmd.Flags().StringVar(&parent, "parent", "", "parent id, or root (default root)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseParent reads "", "root" or a positive id. nil means the root group.
func parseParent(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "root") {
		return nil, nil
	}
	id, err := parseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
