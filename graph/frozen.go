package graph

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Frozen is a flattened graph: sorted node and edge arrays. It is the
// snapshot form kept by states whose graphs would otherwise be expensive
// to reconstruct.
type Frozen struct {
	Nodes []Node
	Edges []Edge
}

// Freeze flattens g.
func Freeze(g *Graph) Frozen {
	return Frozen{Nodes: g.Nodes(), Edges: g.Edges()}
}

// Thaw rebuilds a mutable graph from the snapshot.
func (f Frozen) Thaw(name string) *Graph {
	g := New(name)
	for _, n := range f.Nodes {
		g.AddNode(n)
	}
	for _, e := range f.Edges {
		g.AddEdge(e)
	}
	return g
}

// Size returns the number of elements in the snapshot.
func (f Frozen) Size() int {
	return len(f.Nodes) + len(f.Edges)
}

// frozenEdge refers to its ends by index into the node array, so
// compressed snapshots do not repeat node payloads.
type frozenEdge struct {
	S int    `json:"s"`
	L string `json:"l"`
	T int    `json:"t"`
}

type frozenWire struct {
	Nodes []Node       `json:"nodes"`
	Edges []frozenEdge `json:"edges"`
}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	codecErr    error
)

func zstdEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		var err error
		encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			codecErr = err
		}
	})
	return encoder, codecErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		var err error
		decoder, err = zstd.NewReader(nil)
		if err != nil {
			codecErr = err
		}
	})
	return decoder, codecErr
}

// Compress encodes the snapshot as zstd-compressed JSON.
func (f Frozen) Compress() ([]byte, error) {
	index := make(map[Node]int, len(f.Nodes))
	for i, n := range f.Nodes {
		index[n] = i
	}
	wire := frozenWire{Nodes: f.Nodes, Edges: make([]frozenEdge, len(f.Edges))}
	for i, e := range f.Edges {
		s, ok := index[e.Source]
		if !ok {
			return nil, fmt.Errorf("edge %s: source not in snapshot", e)
		}
		t, ok := index[e.Target]
		if !ok {
			return nil, fmt.Errorf("edge %s: target not in snapshot", e)
		}
		wire.Edges[i] = frozenEdge{S: s, L: e.Label, T: t}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

// Decompress decodes a snapshot produced by Frozen.Compress.
func Decompress(data []byte) (Frozen, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return Frozen{}, fmt.Errorf("creating zstd decoder: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return Frozen{}, fmt.Errorf("decompressing snapshot: %w", err)
	}
	var wire frozenWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Frozen{}, fmt.Errorf("parsing snapshot: %w", err)
	}
	f := Frozen{Nodes: wire.Nodes, Edges: make([]Edge, len(wire.Edges))}
	for i, e := range wire.Edges {
		if e.S < 0 || e.S >= len(f.Nodes) || e.T < 0 || e.T >= len(f.Nodes) {
			return Frozen{}, fmt.Errorf("snapshot edge %d: node index out of range", i)
		}
		f.Edges[i] = NewEdge(f.Nodes[e.S], e.L, f.Nodes[e.T])
	}
	return f, nil
}

// Equal reports whether two snapshots contain the same elements.
func (f Frozen) Equal(o Frozen) bool {
	return slices.Equal(f.Nodes, o.Nodes) && slices.Equal(f.Edges, o.Edges)
}
