package function

import (
	"encoding/binary"
	"fmt"
	"iter"
)

const (
	// BlockHeaderSize is the size of [u32 block_size][u8 kind][u8 tag][u16 flags].
	BlockHeaderSize = 8

	// CollectionHeaderSize is the size of [u32 total_size][u32 count].
	CollectionHeaderSize = 8

	weightSize = 4
)

// conditionPayloadSize returns the payload size of a condition tag, or -1.
func conditionPayloadSize(t Tag) int {
	switch t {
	case TagAlways:
		return 0
	case TagIsSet, TagBoolEquals, TagEnumEquals, TagEnumHasFlags, TagObjectEquals:
		return 4
	case TagIntCompare, TagFloatCompare:
		return 8
	default:
		return -1
	}
}

// effectorPayloadSize returns the payload size of an effector tag, or -1.
func effectorPayloadSize(t Tag) int {
	switch t {
	case TagSetBool, TagSetEnum, TagEnumSetFlags, TagEnumClearFlags, TagClearKey:
		return 4
	case TagSetInt, TagSetFloat, TagAddInt, TagAddFloat, TagCopyKey:
		return 8
	default:
		return -1
	}
}

// payloadSize returns the fixed payload size for (kind, tag), or -1 if the pair is unknown.
func payloadSize(k Kind, t Tag) int {
	switch k {
	case KindDecorator:
		return conditionPayloadSize(t)
	case KindScoreCalculator:
		if n := conditionPayloadSize(t); n >= 0 {
			return weightSize + n
		}
	case KindEffector:
		return effectorPayloadSize(t)
	}
	return -1
}

// Block is one compiled function.
type Block []byte

// Size returns the block size recorded in the header.
func (b Block) Size() int { return int(binary.LittleEndian.Uint32(b)) }

// Kind returns the block kind.
func (b Block) Kind() Kind { return Kind(b[4]) }

// Tag returns the operation tag.
func (b Block) Tag() Tag { return Tag(b[5]) }

// Inverted reports whether the block's condition result is negated.
func (b Block) Inverted() bool { return binary.LittleEndian.Uint16(b[6:])&flagInvert != 0 }

// Payload returns the operand bytes.
func (b Block) Payload() []byte { return b[BlockHeaderSize:] }

// Collection is an ordered list of compiled functions of one kind.
// A nil Collection behaves like an empty one.
type Collection []byte

// Empty returns a valid collection with no blocks.
func Empty() Collection {
	c := make(Collection, CollectionHeaderSize)
	binary.LittleEndian.PutUint32(c, CollectionHeaderSize)
	return c
}

// Size returns the total size recorded in the header.
func (c Collection) Size() int {
	if len(c) < CollectionHeaderSize {
		return 0
	}
	return int(binary.LittleEndian.Uint32(c))
}

// Count returns the number of blocks.
func (c Collection) Count() int {
	if len(c) < CollectionHeaderSize {
		return 0
	}
	return int(binary.LittleEndian.Uint32(c[4:]))
}

// Blocks iterates the blocks in order using each block's own size.
// The collection must have passed Check.
func (c Collection) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		off := CollectionHeaderSize
		for i, n := 0, c.Count(); i < n; i++ {
			size := int(binary.LittleEndian.Uint32(c[off:]))
			if !yield(Block(c[off : off+size])) {
				return
			}
			off += size
		}
	}
}

// Check verifies the structure of c: header sizes, block sizes matching their
// (kind, tag) payload shape and, when kind is non-zero, that every block is of that kind.
func Check(c Collection, kind Kind) error {
	if len(c) < CollectionHeaderSize {
		return fmt.Errorf("collection of %d bytes is shorter than its header: %w", len(c), ErrMalformed)
	}
	if c.Size() != len(c) {
		return fmt.Errorf("collection header says %d bytes, buffer has %d: %w", c.Size(), len(c), ErrMalformed)
	}

	off := CollectionHeaderSize
	for i, n := 0, c.Count(); i < n; i++ {
		if off+BlockHeaderSize > len(c) {
			return fmt.Errorf("block %d header overruns collection: %w", i, ErrMalformed)
		}
		b := Block(c[off:])
		size := b.Size()
		want := payloadSize(b.Kind(), b.Tag())
		if want < 0 {
			return fmt.Errorf("block %d: unknown %s tag %d: %w", i, b.Kind(), b.Tag(), ErrMalformed)
		}
		if size != BlockHeaderSize+want {
			return fmt.Errorf("block %d: %s tag %d is %d bytes, expected %d: %w", i, b.Kind(), b.Tag(), size, BlockHeaderSize+want, ErrMalformed)
		}
		if off+size > len(c) {
			return fmt.Errorf("block %d overruns collection: %w", i, ErrMalformed)
		}
		if kind != 0 && b.Kind() != kind {
			return fmt.Errorf("block %d is a %s, expected %s: %w", i, b.Kind(), kind, ErrMalformed)
		}
		off += size
	}

	if off != len(c) {
		return fmt.Errorf("collection has %d trailing bytes: %w", len(c)-off, ErrMalformed)
	}
	return nil
}

// builder appends blocks and patches the collection header when done.
type builder struct {
	buf   []byte
	count uint32
}

func newBuilder() *builder {
	return &builder{buf: make([]byte, CollectionHeaderSize, 64)}
}

// block appends a header and returns the payload slice to fill.
func (b *builder) block(k Kind, t Tag, invert bool) []byte {
	size := BlockHeaderSize + payloadSize(k, t)
	start := len(b.buf)
	b.buf = append(b.buf, make([]byte, size)...)

	hdr := b.buf[start:]
	binary.LittleEndian.PutUint32(hdr, uint32(size))
	hdr[4] = byte(k)
	hdr[5] = byte(t)
	if invert {
		binary.LittleEndian.PutUint16(hdr[6:], flagInvert)
	}
	b.count++
	return b.buf[start+BlockHeaderSize : start+size]
}

func (b *builder) finish() Collection {
	binary.LittleEndian.PutUint32(b.buf, uint32(len(b.buf)))
	binary.LittleEndian.PutUint32(b.buf[4:], b.count)
	return Collection(b.buf)
}
