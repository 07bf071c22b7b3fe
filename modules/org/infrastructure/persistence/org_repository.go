package persistence

import (
	"context"
	_ "embed"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/composables"
)

//go:embed schema/org-schema.sql
var schemaSQL string

// treeLockKey serializes tree writes across server replicas.
const treeLockKey int64 = 0x6f7267_7472_6565

const selectUnits = `
SELECT id, org_type, name, code, parent_id, display_order
FROM org_units`

type PGOrgRepository struct {
	pool *pgxpool.Pool
}

var _ services.OrgRepository = (*PGOrgRepository)(nil)

// NewPGOrgRepository returns a repository bound to pool. With a nil pool the
// repository only works on a transaction already carried by the context.
func NewPGOrgRepository(pool *pgxpool.Pool) *PGOrgRepository {
	return &PGOrgRepository{pool: pool}
}

func (r *PGOrgRepository) tx(ctx context.Context) (composables.Tx, error) {
	if r.pool != nil {
		if _, err := composables.UsePool(ctx); err != nil {
			ctx = composables.WithPool(ctx, r.pool)
		}
	}
	return composables.UseTx(ctx)
}

func (r *PGOrgRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return gerrors.Wrap(err, "apply org schema")
	}
	return nil
}

func (r *PGOrgRepository) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if r.pool != nil {
		ctx = composables.WithPool(ctx, r.pool)
	}
	return composables.InTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(txCtx, `SELECT pg_advisory_xact_lock($1)`, treeLockKey); err != nil {
			return gerrors.Wrap(err, "lock org tree")
		}
		return fn(txCtx)
	})
}

func (r *PGOrgRepository) List(ctx context.Context) ([]orgtree.Node, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, selectUnits+`
ORDER BY parent_id NULLS FIRST, display_order ASC, id ASC`)
	if err != nil {
		return nil, gerrors.Wrap(err, "list org units")
	}
	defer rows.Close()

	out := make([]orgtree.Node, 0, 64)
	for rows.Next() {
		var n orgtree.Node
		if err := rows.Scan(&n.ID, &n.OrgType, &n.Name, &n.Code, &n.ParentID, &n.DisplayOrder); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *PGOrgRepository) Get(ctx context.Context, id int64) (orgtree.Node, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return orgtree.Node{}, err
	}
	var n orgtree.Node
	err = tx.QueryRow(ctx, selectUnits+`
WHERE id = $1`, id).Scan(&n.ID, &n.OrgType, &n.Name, &n.Code, &n.ParentID, &n.DisplayOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return orgtree.Node{}, gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", id)
	}
	if err != nil {
		return orgtree.Node{}, gerrors.Wrap(err, "get org unit")
	}
	return n, nil
}

// ListSiblingIDs locks the group rows when called inside WithTx.
func (r *PGOrgRepository) ListSiblingIDs(ctx context.Context, parentID *int64) ([]int64, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT id
FROM org_units
WHERE parent_id IS NOT DISTINCT FROM $1::bigint
ORDER BY display_order ASC, id ASC
FOR UPDATE`, parentID)
	if err != nil {
		return nil, gerrors.Wrap(err, "list sibling ids")
	}
	defer rows.Close()

	ids := make([]int64, 0, 16)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// UpdateSiblingOrder sets display_order to each id's index in ids.
func (r *PGOrgRepository) UpdateSiblingOrder(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(`UPDATE org_units SET display_order = $2, updated_at = now() WHERE id = $1`, id, i)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range ids {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return gerrors.Wrap(err, "update display_order")
		}
		if tag.RowsAffected() == 0 {
			_ = br.Close()
			return gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", ids[i])
		}
	}
	return br.Close()
}

func (r *PGOrgRepository) UpdateParent(ctx context.Context, id int64, parentID *int64, displayOrder int) error {
	tx, err := r.tx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
UPDATE org_units
SET parent_id = $2, display_order = $3, updated_at = now()
WHERE id = $1`, id, parentID, displayOrder)
	if err != nil {
		return gerrors.Wrap(err, "update parent")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Wrapf(orgtree.ErrNotFound, "org unit %d", id)
	}
	return nil
}

func (r *PGOrgRepository) Insert(ctx context.Context, in services.NodeInsert) (orgtree.Node, error) {
	tx, err := r.tx(ctx)
	if err != nil {
		return orgtree.Node{}, err
	}
	n := orgtree.Node{
		OrgType:      in.OrgType,
		Name:         in.Name,
		Code:         in.Code,
		ParentID:     in.ParentID,
		DisplayOrder: in.DisplayOrder,
	}
	err = tx.QueryRow(ctx, `
INSERT INTO org_units (org_type, name, code, parent_id, display_order)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, in.OrgType, in.Name, in.Code, in.ParentID, in.DisplayOrder).Scan(&n.ID)
	if err != nil {
		return orgtree.Node{}, err
	}
	return n, nil
}
