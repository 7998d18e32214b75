package merge

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/skelmerge/pkg/mesh"
)

func translate(x, y, z float32) mesh.Transform {
	t := mesh.IdentityTransform()
	t.Translation = mgl32.Vec3{x, y, z}
	return t
}

// chainSkeleton builds a skeleton where each bone parents the previous one,
// every local bind a unit step along Y.
func chainSkeleton(names ...string) *mesh.Skeleton {
	s := &mesh.Skeleton{}
	for i, name := range names {
		parent := i - 1
		if i == 0 {
			parent = mesh.NoBone
		}
		bind := mesh.IdentityTransform()
		if i > 0 {
			bind = translate(0, 1, 0)
		}
		s.Bones = append(s.Bones, mesh.Bone{Name: name, Parent: parent, Bind: bind})
	}
	return s
}

func skelMesh(name string, skel *mesh.Skeleton) *mesh.SourceMesh {
	return &mesh.SourceMesh{Name: name, Skeleton: skel}
}

func TestBuildSkeletonBaseline(t *testing.T) {
	a := chainSkeleton("root", "pelvis", "spine_01")
	b := chainSkeleton("root", "pelvis", "tail_01")

	merged, err := buildSkeleton([]Part{
		{Mesh: skelMesh("a", a)},
		{Mesh: skelMesh("b", b)},
	}, SkeletonBaseline)
	if err != nil {
		t.Fatalf("buildSkeleton() error = %v", err)
	}

	if len(merged.Bones) != 3 {
		t.Fatalf("got %d bones, want 3 (baseline takes the first skeleton only)", len(merged.Bones))
	}
	if merged.FindBone("tail_01") != mesh.NoBone {
		t.Error("baseline policy must not add bones of later meshes")
	}

	// The merged skeleton must be detached from the source.
	merged.Bones[0].Name = "mutated"
	if a.Bones[0].Name != "root" {
		t.Error("merged skeleton aliases the source skeleton")
	}
}

func TestBuildSkeletonUnion(t *testing.T) {
	a := chainSkeleton("root", "pelvis", "spine_01")
	b := chainSkeleton("root", "pelvis", "tail_01", "tail_02")
	c := &mesh.Skeleton{Bones: []mesh.Bone{
		{Name: "other_root", Parent: mesh.NoBone, Bind: mesh.IdentityTransform()},
		{Name: "loose", Parent: 0, Bind: mesh.IdentityTransform()},
	}}

	merged, err := buildSkeleton([]Part{
		{Mesh: skelMesh("a", a)},
		{Mesh: skelMesh("b", b)},
		{Mesh: skelMesh("c", c)},
	}, SkeletonUnion)
	if err != nil {
		t.Fatalf("buildSkeleton() error = %v", err)
	}

	tail1 := merged.FindBone("tail_01")
	tail2 := merged.FindBone("tail_02")
	if tail1 == mesh.NoBone || tail2 == mesh.NoBone {
		t.Fatalf("union policy must append tail bones, got %v", merged.Bones)
	}
	if merged.Bones[tail1].Parent != merged.FindBone("pelvis") {
		t.Errorf("tail_01 parent = %d, want pelvis", merged.Bones[tail1].Parent)
	}
	if merged.Bones[tail2].Parent != tail1 {
		t.Errorf("tail_02 parent = %d, want tail_01 at %d", merged.Bones[tail2].Parent, tail1)
	}
	// "loose" hangs off an unresolvable root and must be skipped.
	if merged.FindBone("loose") != mesh.NoBone {
		t.Error("bone with unresolvable parent must not be appended")
	}
	if err := merged.Validate(); err != nil {
		t.Errorf("merged skeleton invalid: %v", err)
	}
}

func TestBuildRemapTable(t *testing.T) {
	merged := chainSkeleton("root", "pelvis", "spine_01", "spine_02")
	log := zap.NewNop()

	t.Run("name match", func(t *testing.T) {
		src := chainSkeleton("root", "pelvis", "spine_01")
		table := buildRemapTable(src, merged, mesh.NoBone, "m", log)
		for i, want := range []int{0, 1, 2} {
			if table[i] != want {
				t.Errorf("table[%d] = %d, want %d", i, table[i], want)
			}
		}
	})

	t.Run("ancestor fallback", func(t *testing.T) {
		// twist_01 is unknown to the merged skeleton; its parent spine_01
		// resolves.
		src := chainSkeleton("root", "pelvis", "spine_01", "twist_01")
		table := buildRemapTable(src, merged, mesh.NoBone, "m", log)
		if table[3] != 2 {
			t.Errorf("table[3] = %d, want 2 (parent spine_01)", table[3])
		}
	})

	t.Run("root fallback", func(t *testing.T) {
		// Four unknown ancestors exhaust the walk; the merged root catches
		// the leaf.
		src := chainSkeleton("x0", "x1", "x2", "x3", "x4")
		table := buildRemapTable(src, merged, mesh.NoBone, "m", log)
		if table[4] != 0 {
			t.Errorf("table[4] = %d, want 0 (merged root)", table[4])
		}
	})

	t.Run("attach bone", func(t *testing.T) {
		src := chainSkeleton("root", "pelvis", "spine_01")
		table := buildRemapTable(src, merged, 3, "m", log)
		for i := range table {
			if table[i] != 3 {
				t.Fatalf("table[%d] = %d, want attach bone 3 for every entry", i, table[i])
			}
		}
	})
}

func TestBindPartsAttachTransform(t *testing.T) {
	merged := chainSkeleton("root", "pelvis", "hand_r")
	src := chainSkeleton("weapon_root", "blade")

	bindings := bindParts([]Part{
		{Mesh: skelMesh("sword", src), AttachBone: "hand_r", Transform: mesh.IdentityTransform()},
	}, merged, zap.NewNop())

	// hand_r sits two unit steps up the chain; a vertex at the weapon root
	// origin lands in the attach bone's component space.
	got := mgl32.TransformCoordinate(mgl32.Vec3{}, bindings[0].transform)
	want := mgl32.Vec3{0, 2, 0}
	if !got.ApproxEqualThreshold(want, 1e-4) {
		t.Errorf("attached origin = %v, want %v", got, want)
	}

	for i, dest := range bindings[0].remap {
		if dest != 2 {
			t.Errorf("remap[%d] = %d, want attach bone 2", i, dest)
		}
	}
}

func TestBindPartsMissingAttachBone(t *testing.T) {
	merged := chainSkeleton("root", "pelvis")
	src := chainSkeleton("root", "pelvis")

	bindings := bindParts([]Part{
		{Mesh: skelMesh("m", src), AttachBone: "hand_r", Transform: translate(5, 0, 0)},
	}, merged, zap.NewNop())

	// The missing attach bone degrades to a plain by-name merge with the
	// caller transform kept.
	got := mgl32.TransformCoordinate(mgl32.Vec3{}, bindings[0].transform)
	want := mgl32.Vec3{5, 0, 0}
	if !got.ApproxEqualThreshold(want, 1e-5) {
		t.Errorf("transform origin = %v, want %v", got, want)
	}
	if bindings[0].remap[1] != 1 {
		t.Errorf("remap[1] = %d, want 1", bindings[0].remap[1])
	}
}

func TestBuildSocketsFirstWins(t *testing.T) {
	a := skelMesh("a", chainSkeleton("root"))
	a.Sockets = []mesh.Socket{{Name: "muzzle", Bone: "root", Relative: translate(1, 0, 0)}}
	b := skelMesh("b", chainSkeleton("root"))
	b.Sockets = []mesh.Socket{
		{Name: "muzzle", Bone: "root", Relative: translate(9, 9, 9)},
		{Name: "grip", Bone: "root"},
	}
	// A skeleton-level socket colliding with a mesh-level one loses even
	// though its mesh comes first.
	a.SkeletonSockets = []mesh.Socket{{Name: "grip", Bone: "root", Relative: translate(7, 7, 7)}}

	sockets := buildSockets([]Part{{Mesh: a}, {Mesh: b}}, zap.NewNop())

	if len(sockets) != 2 {
		t.Fatalf("got %d sockets, want 2: %+v", len(sockets), sockets)
	}
	byName := map[string]mesh.Socket{}
	for _, s := range sockets {
		byName[s.Name] = s
	}
	if got := byName["muzzle"].Relative.Translation; got != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("muzzle translation = %v, want first mesh's socket", got)
	}
	if got := byName["grip"].Relative.Translation; got != (mgl32.Vec3{}) {
		t.Errorf("grip translation = %v, want mesh-level socket over skeleton-level", got)
	}
}

func TestApplyPoseOverrides(t *testing.T) {
	merged := chainSkeleton("root", "pelvis", "spine_01", "spine_02")
	override := chainSkeleton("root", "pelvis", "spine_01", "spine_02")
	override.Bones[2].Bind = translate(0, 5, 0)
	override.Bones[3].Bind = translate(0, 6, 0)

	tests := []struct {
		name       string
		mode       PoseOverrideMode
		wantSpine1 mgl32.Vec3
		wantSpine2 mgl32.Vec3
	}{
		{"bone only", OverrideBoneOnly, mgl32.Vec3{0, 5, 0}, mgl32.Vec3{0, 1, 0}},
		{"children only", OverrideChildrenOnly, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 6, 0}},
		{"bone and children", OverrideBoneAndChildren, mgl32.Vec3{0, 5, 0}, mgl32.Vec3{0, 6, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skel := chainSkeleton(merged.Bones[0].Name, "pelvis", "spine_01", "spine_02")
			applyPoseOverrides(skel, []PoseOverride{{
				Mesh:      skelMesh("pose", override),
				Overrides: []BoneOverride{{Bone: "spine_01", Mode: tt.mode}},
			}})
			if got := skel.Bones[2].Bind.Translation; got != tt.wantSpine1 {
				t.Errorf("spine_01 bind = %v, want %v", got, tt.wantSpine1)
			}
			if got := skel.Bones[3].Bind.Translation; got != tt.wantSpine2 {
				t.Errorf("spine_02 bind = %v, want %v", got, tt.wantSpine2)
			}
		})
	}
}

func TestApplyPoseOverridesInvalidMode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid override mode")
		}
	}()
	applyPoseOverrides(chainSkeleton("root"), []PoseOverride{{
		Mesh:      skelMesh("pose", chainSkeleton("root")),
		Overrides: []BoneOverride{{Bone: "root", Mode: PoseOverrideMode(99)}},
	}})
}

func TestOverrideSockets(t *testing.T) {
	src := skelMesh("pose", chainSkeleton("root", "pelvis", "spine_01"))
	src.Sockets = []mesh.Socket{{Name: "back", Bone: "spine_01", Relative: translate(0, 0, 9)}}

	merged := []mesh.Socket{
		{Name: "back", Bone: "spine_01", Relative: translate(0, 0, 1)},
		{Name: "hip", Bone: "pelvis", Relative: translate(1, 0, 0)},
	}
	overrideSockets(merged, []PoseOverride{{
		Mesh:      src,
		Overrides: []BoneOverride{{Bone: "spine_01", Mode: OverrideBoneOnly}},
	}})

	if got := merged[0].Relative.Translation; got != (mgl32.Vec3{0, 0, 9}) {
		t.Errorf("back socket = %v, want override source's transform", got)
	}
	if got := merged[1].Relative.Translation; got != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("hip socket = %v, want untouched", got)
	}
}
