package operations

import (
	"testing"

	"mindsync/domain/config"
	"mindsync/domain/core/entities"
	"mindsync/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool      { return &b }

func mustOpID(id string) valueobjects.OperationID {
	opID, err := valueobjects.NewOperationIDFromString(id)
	if err != nil {
		panic(err)
	}
	return opID
}

func testOp(opType OperationType, userID, targetID string, ts int64) Operation {
	op := Operation{
		ID:         mustOpID(userID + "-" + targetID + "-" + string(opType)),
		Type:       opType,
		TargetType: TargetNode,
		TargetID:   targetID,
		MindmapID:  "map-1",
		UserID:     userID,
		Timestamp:  ts,
	}
	switch opType {
	case OpUpdate:
		op.Update = &entities.NodePatch{}
	case OpMove:
		op.Move = &MovePayload{X: f64Ptr(0), Y: f64Ptr(0)}
	case OpCreate:
		op.Create = &entities.NodeData{ID: targetID}
	}
	return op
}

func newTestTransformer() *Transformer {
	return NewTransformer(config.DefaultSyncConfig())
}

func TestDeterminePriority(t *testing.T) {
	tr := newTestTransformer()

	t.Run("larger timestamp wins", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		b := testOp(OpUpdate, "bob", "n1", 200)

		assert.Equal(t, b.ID, tr.DeterminePriority(a, b).ID)
		assert.Equal(t, b.ID, tr.DeterminePriority(b, a).ID)
	})

	t.Run("timestamp tie breaks to smaller user id", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		b := testOp(OpUpdate, "bob", "n1", 100)

		assert.Equal(t, a.ID, tr.DeterminePriority(a, b).ID)
		assert.Equal(t, a.ID, tr.DeterminePriority(b, a).ID)
	})

	t.Run("picks exactly one of any pair", func(t *testing.T) {
		a := testOp(OpMove, "alice", "n1", 100)
		b := testOp(OpMove, "bob", "n2", 100)

		forward := tr.DeterminePriority(a, b)
		backward := tr.DeterminePriority(b, a)
		assert.Equal(t, forward.ID, backward.ID)
	})
}

func TestTransformUpdateUpdate(t *testing.T) {
	tr := newTestTransformer()

	t.Run("later update overrides shared fields, unique fields survive", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		a.Update = &entities.NodePatch{Text: strPtr("alice text"), Color: strPtr("red")}
		b := testOp(OpUpdate, "bob", "n1", 200)
		b.Update = &entities.NodePatch{Text: strPtr("bob text"), Collapsed: boolPtr(true)}

		ta, tb := tr.Transform(a, b)

		// b is later, so it wins; a's text is rewritten to b's value while
		// a's color, which b never touched, survives.
		require.NotNil(t, ta.Update)
		assert.Equal(t, "bob text", *ta.Update.Text)
		assert.Equal(t, "red", *ta.Update.Color)
		assert.NotEmpty(t, ta.TransformNote)

		assert.Equal(t, "bob text", *tb.Update.Text)
		assert.True(t, *tb.Update.Collapsed)
		assert.Empty(t, tb.TransformNote)
	})

	t.Run("applying both orders converges", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		a.Update = &entities.NodePatch{Text: strPtr("A")}
		b := testOp(OpUpdate, "bob", "n1", 200)
		b.Update = &entities.NodePatch{Text: strPtr("B")}

		ta1, tb1 := tr.Transform(a, b)
		ta2, tb2 := tr.Transform(a, b)

		assert.Equal(t, ta1, ta2)
		assert.Equal(t, tb1, tb2)
		assert.Equal(t, "B", *ta1.Update.Text)
		assert.Equal(t, "B", *tb1.Update.Text)
	})

	t.Run("parent change stays outside the merged field set", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		a.Update = &entities.NodePatch{Text: strPtr("alice text"), ParentID: strPtr("root-a")}
		b := testOp(OpUpdate, "bob", "n1", 200)
		b.Update = &entities.NodePatch{Text: strPtr("bob text"), ParentID: strPtr("root-b")}

		ta, tb := tr.Transform(a, b)

		// The shared text field lands on the winner's value, but each side's
		// reparenting survives untouched on its own operation.
		assert.Equal(t, "bob text", *ta.Update.Text)
		assert.Equal(t, "root-a", *ta.Update.ParentID)
		assert.Equal(t, "root-b", *tb.Update.ParentID)
	})

	t.Run("inputs are never mutated", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		a.Update = &entities.NodePatch{Text: strPtr("original")}
		b := testOp(OpUpdate, "bob", "n1", 200)
		b.Update = &entities.NodePatch{Text: strPtr("newer")}

		tr.Transform(a, b)

		assert.Equal(t, "original", *a.Update.Text)
		assert.Empty(t, a.TransformNote)
	})
}

func TestTransformUpdateDelete(t *testing.T) {
	tr := newTestTransformer()

	t.Run("delete dominates regardless of timestamps", func(t *testing.T) {
		update := testOp(OpUpdate, "alice", "n1", 999)
		update.Update = &entities.NodePatch{Text: strPtr("doomed")}
		del := testOp(OpDelete, "bob", "n1", 1)

		tu, td := tr.Transform(update, del)

		assert.True(t, tu.IsNoop())
		assert.Contains(t, tu.TransformNote, "deleted")
		assert.Equal(t, OpDelete, td.Type)
	})

	t.Run("argument order does not matter", func(t *testing.T) {
		update := testOp(OpUpdate, "alice", "n1", 100)
		del := testOp(OpDelete, "bob", "n1", 200)

		td, tu := tr.Transform(del, update)

		assert.Equal(t, OpDelete, td.Type)
		assert.True(t, tu.IsNoop())
	})
}

func TestTransformDeleteDelete(t *testing.T) {
	tr := newTestTransformer()

	earlier := testOp(OpDelete, "alice", "n1", 100)
	later := testOp(OpDelete, "bob", "n1", 200)

	te, tl := tr.Transform(earlier, later)

	assert.Equal(t, OpDelete, te.Type)
	assert.True(t, tl.IsNoop())
	assert.Contains(t, tl.TransformNote, "already deleted")
}

func TestTransformMoveMove(t *testing.T) {
	tr := newTestTransformer()

	t.Run("later move wins, earlier becomes noop", func(t *testing.T) {
		first := testOp(OpMove, "alice", "n1", 100)
		first.Move = &MovePayload{X: f64Ptr(10), Y: f64Ptr(10)}
		second := testOp(OpMove, "bob", "n1", 200)
		second.Move = &MovePayload{X: f64Ptr(50), Y: f64Ptr(50)}

		tf, ts := tr.Transform(first, second)

		assert.True(t, tf.IsNoop())
		assert.Nil(t, tf.Move)
		assert.Equal(t, OpMove, ts.Type)
		assert.Equal(t, 50.0, *ts.Move.X)
	})

	t.Run("moves of different nodes pass through", func(t *testing.T) {
		a := testOp(OpMove, "alice", "n1", 100)
		b := testOp(OpMove, "bob", "n2", 200)

		ta, tb := tr.Transform(a, b)

		assert.Equal(t, a, ta)
		assert.Equal(t, b, tb)
	})
}

func TestTransformCreateCreate(t *testing.T) {
	tr := newTestTransformer()

	t.Run("duplicate creation keeps the earlier create", func(t *testing.T) {
		earlier := testOp(OpCreate, "alice", "n1", 100)
		later := testOp(OpCreate, "bob", "n1", 200)

		te, tl := tr.Transform(earlier, later)

		assert.Equal(t, OpCreate, te.Type)
		assert.True(t, tl.IsNoop())
		assert.Contains(t, tl.TransformNote, "already created")
	})

	t.Run("creates of different nodes never conflict", func(t *testing.T) {
		a := testOp(OpCreate, "alice", "n1", 100)
		b := testOp(OpCreate, "bob", "n2", 200)

		ta, tb := tr.Transform(a, b)

		assert.Equal(t, OpCreate, ta.Type)
		assert.Equal(t, OpCreate, tb.Type)
	})
}

func TestTransformCreateDelete(t *testing.T) {
	tr := newTestTransformer()

	t.Run("delete of a not-yet-created node is neutralized", func(t *testing.T) {
		create := testOp(OpCreate, "alice", "n1", 200)
		del := testOp(OpDelete, "bob", "n1", 100)

		tc, td := tr.Transform(create, del)

		assert.Equal(t, OpCreate, tc.Type)
		assert.True(t, td.IsNoop())
	})

	t.Run("delete then recreate passes through", func(t *testing.T) {
		del := testOp(OpDelete, "alice", "n1", 100)
		create := testOp(OpCreate, "bob", "n1", 200)

		td, tc := tr.Transform(del, create)

		assert.Equal(t, OpDelete, td.Type)
		assert.Equal(t, OpCreate, tc.Type)
	})
}

func TestTransformIdempotentOnNoop(t *testing.T) {
	tr := newTestTransformer()

	update := testOp(OpUpdate, "alice", "n1", 100)
	del := testOp(OpDelete, "bob", "n1", 200)

	neutered, td := tr.Transform(update, del)
	require.True(t, neutered.IsNoop())

	// Running the already-neutralized operation through again must not
	// resurrect it or change the delete.
	again, tdAgain := tr.Transform(neutered, del)
	assert.Equal(t, neutered, again)
	assert.Equal(t, td, tdAgain)
}

func TestAreRelated(t *testing.T) {
	tr := newTestTransformer()

	t.Run("same target", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		b := testOp(OpDelete, "bob", "n1", 200)
		assert.True(t, tr.AreRelated(a, b))
	})

	t.Run("create under a node relates to operations on that node", func(t *testing.T) {
		parentDel := testOp(OpDelete, "alice", "parent", 100)
		childCreate := testOp(OpCreate, "bob", "child", 200)
		childCreate.Create.ParentID = "parent"

		assert.True(t, tr.AreRelated(childCreate, parentDel))
		assert.True(t, tr.AreRelated(parentDel, childCreate))
	})

	t.Run("update reparenting under a node relates to operations on that node", func(t *testing.T) {
		parentDel := testOp(OpDelete, "alice", "parent", 100)
		reparent := testOp(OpUpdate, "bob", "child", 200)
		reparent.Update.ParentID = strPtr("parent")

		assert.True(t, tr.AreRelated(reparent, parentDel))
		assert.True(t, tr.AreRelated(parentDel, reparent))
	})

	t.Run("siblings under the same parent are related", func(t *testing.T) {
		a := testOp(OpCreate, "alice", "n1", 100)
		a.Create.ParentID = "root"
		b := testOp(OpCreate, "bob", "n2", 200)
		b.Create.ParentID = "root"

		assert.True(t, tr.AreRelated(a, b))
	})

	t.Run("disjoint nodes are unrelated", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		b := testOp(OpUpdate, "bob", "n2", 200)
		assert.False(t, tr.AreRelated(a, b))
	})
}

func TestTransformBatch(t *testing.T) {
	tr := newTestTransformer()

	t.Run("drops neutralized operations and keeps survivors ordered", func(t *testing.T) {
		update := testOp(OpUpdate, "alice", "n1", 100)
		update.Update = &entities.NodePatch{Text: strPtr("x")}
		del := testOp(OpDelete, "bob", "n1", 200)
		unrelated := testOp(OpCreate, "carol", "n9", 150)

		result := tr.TransformBatch([]Operation{del, unrelated, update})

		ids := make([]string, 0, len(result))
		for _, op := range result {
			ids = append(ids, op.TargetID)
		}
		// The update is neutralized by the delete; the other two survive in
		// timestamp order.
		require.Len(t, result, 2)
		assert.Equal(t, []string{"n9", "n1"}, ids)
		assert.Equal(t, OpDelete, result[1].Type)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		assert.Empty(t, tr.TransformBatch(nil))
	})
}

func TestPositionConflict(t *testing.T) {
	tr := newTestTransformer()

	t.Run("moves within the threshold collide", func(t *testing.T) {
		a := testOp(OpMove, "alice", "n1", 100)
		a.Move = &MovePayload{X: f64Ptr(100), Y: f64Ptr(100)}
		b := testOp(OpMove, "bob", "n2", 200)
		b.Move = &MovePayload{X: f64Ptr(110), Y: f64Ptr(110)}

		assert.True(t, tr.DetectPositionConflict(a, b))

		ta, tb := tr.ResolvePositionConflict(a, b)

		// b is later so it wins; a gets nudged sideways.
		assert.Equal(t, 100.0+tr.cfg.PositionNudgeOffset, *ta.Move.X)
		assert.Equal(t, 110.0, *tb.Move.X)
		assert.NotEmpty(t, ta.TransformNote)
	})

	t.Run("distant moves do not collide", func(t *testing.T) {
		a := testOp(OpMove, "alice", "n1", 100)
		a.Move = &MovePayload{X: f64Ptr(0), Y: f64Ptr(0)}
		b := testOp(OpMove, "bob", "n2", 200)
		b.Move = &MovePayload{X: f64Ptr(500), Y: f64Ptr(500)}

		assert.False(t, tr.DetectPositionConflict(a, b))
	})
}

func TestClassifyConflict(t *testing.T) {
	tr := newTestTransformer()

	cases := []struct {
		name     string
		a, b     OperationType
		kind     ConflictKind
		severity Severity
	}{
		{"two deletes", OpDelete, OpDelete, ConflictConcurrentDelete, SeverityMedium},
		{"update against delete", OpUpdate, OpDelete, ConflictUpdateDelete, SeverityHigh},
		{"two moves", OpMove, OpMove, ConflictConcurrentMove, SeverityLow},
		{"two creates", OpCreate, OpCreate, ConflictDuplicateCreation, SeverityHigh},
		{"two updates", OpUpdate, OpUpdate, ConflictConcurrentUpdate, SeverityMedium},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := testOp(tc.a, "alice", "n1", 100)
			b := testOp(tc.b, "bob", "n1", 200)

			p := tr.ClassifyConflict(a, b)

			require.NotNil(t, p)
			assert.Equal(t, tc.kind, p.Kind)
			assert.Equal(t, tc.severity, p.Severity)
			assert.Len(t, p.OperationIDs, 2)
		})
	}

	t.Run("different targets classify as nothing", func(t *testing.T) {
		a := testOp(OpUpdate, "alice", "n1", 100)
		b := testOp(OpUpdate, "bob", "n2", 200)
		assert.Nil(t, tr.ClassifyConflict(a, b))
	})
}
