// Package export serialises finished trees into the portable record shape
// consumed downstream by model training, grounded on the original's
// export_trees_to_file/build_export_tree.
package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/domain/repository"
	"github.com/oasst/treemanager/internal/infrastructure/storage/models"
	"github.com/oasst/treemanager/pkg/treemodel"
)

// ExportMessage is one tree node in an exported record.
type ExportMessage struct {
	ID            uuid.UUID  `json:"message_id"`
	ParentID      *uuid.UUID `json:"parent_id,omitempty"`
	Text          string     `json:"text"`
	Role          string     `json:"role"`
	Lang          string     `json:"lang"`
	ReviewCount   int        `json:"review_count"`
	ReviewResult  bool       `json:"review_result"`
	Deleted       bool       `json:"deleted"`
	Rank          *int       `json:"rank,omitempty"`
	RankingCount  int        `json:"ranking_count"`
	ChildrenCount int        `json:"children_count"`
}

// ExportTree is the one-record-per-tree unit the original calls an
// ExportMessageTree.
type ExportTree struct {
	MessageTreeID uuid.UUID       `json:"message_tree_id"`
	Messages      []ExportMessage `json:"messages"`
}

// Options controls which messages are included and how records are framed.
type Options struct {
	// ReviewedOnly drops messages whose review has not passed, matching
	// the original's default reviewed=True.
	ReviewedOnly bool
	// IncludeDeleted keeps soft/hard-purge-surviving deleted rows instead
	// of filtering them out.
	IncludeDeleted bool
	// Gzip compresses the returned bytes when true.
	Gzip bool
}

// Exporter builds serialised tree bundles.
type Exporter struct {
	Messages repository.MessageRepository
}

// ExportTrees builds one ExportTree per id in treeIDs and returns the
// encoded bundle, gzip-compressed when opts.Gzip is set.
func (e *Exporter) ExportTrees(ctx context.Context, treeIDs []uuid.UUID, opts Options) ([]byte, error) {
	trees := make([]ExportTree, 0, len(treeIDs))

	for _, id := range treeIDs {
		msgs, err := e.Messages.FindByTreeID(ctx, id, true)
		if err != nil {
			return nil, err
		}
		trees = append(trees, buildExportTree(id, msgs, opts))
	}

	encoded, err := json.MarshalIndent(trees, "", "  ")
	if err != nil {
		return nil, err
	}
	if !opts.Gzip {
		return encoded, nil
	}
	return gzipBytes(encoded)
}

func buildExportTree(treeID uuid.UUID, msgs []*models.MessageModel, opts Options) ExportTree {
	out := ExportTree{MessageTreeID: treeID, Messages: make([]ExportMessage, 0, len(msgs))}
	for _, m := range msgs {
		if !opts.IncludeDeleted && m.Deleted {
			continue
		}
		if opts.ReviewedOnly && !m.ReviewResult {
			continue
		}
		out.Messages = append(out.Messages, ExportMessage{
			ID:            m.ID,
			ParentID:      m.ParentID,
			Text:          m.Text,
			Role:          m.Role,
			Lang:          m.Lang,
			ReviewCount:   m.ReviewCount,
			ReviewResult:  m.ReviewResult,
			Deleted:       m.Deleted,
			Rank:          m.Rank,
			RankingCount:  m.RankingCount,
			ChildrenCount: m.ChildrenCount,
		})
	}
	return out
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadyTreeIDs returns the message_tree_id of every tree currently sitting
// in READY_FOR_EXPORT, grounded on the original's
// fetch_message_trees_ready_for_export / export_all_ready_trees.
func ReadyTreeIDs(ctx context.Context, trees repository.TreeStateRepository) ([]uuid.UUID, error) {
	states, err := trees.FindByState(ctx, []string{string(treemodel.StateReadyForExport)})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(states))
	for _, s := range states {
		ids = append(ids, s.MessageTreeID)
	}
	return ids, nil
}
