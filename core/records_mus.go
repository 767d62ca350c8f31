package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the stored records. Fields are written in declaration
// order; adding a field means appending it to Marshal, Unmarshal and Size.
var (
	IDMUS       = idMUS{}
	TimeMUS     = timeMUS{}
	VectorMUS   = vectorMUS{}
	DocumentMUS = documentMUS{}
	VersionMUS  = versionMUS{}
	ChunkMUS    = chunkMUS{}
)

type unmarshaller[T any] interface {
	Unmarshal(bs []byte) (v T, n int, err error)
}

// fieldReader unmarshals consecutive fields and keeps the first error.
type fieldReader struct {
	bs  []byte
	n   int
	err error
}

func readField[T any](r *fieldReader, u unmarshaller[T]) (v T) {
	if r.err != nil {
		return
	}
	v, n, err := u.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return
}

type idMUS struct{}

func (s idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (s idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (s idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (s idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS writes Unix seconds and nanoseconds. Decoded times are UTC and the
// zero Time survives a round trip.
type timeMUS struct{}

func (s timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	n = varint.Int64.Marshal(v.Unix(), bs)
	n += varint.Int64.Marshal(int64(v.Nanosecond()), bs[n:])
	return
}

func (s timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	r := &fieldReader{bs: bs}
	sec := readField[int64](r, varint.Int64)
	nsec := readField[int64](r, varint.Int64)
	if r.err != nil {
		return time.Time{}, r.n, r.err
	}
	return time.Unix(sec, nsec).UTC(), r.n, nil
}

func (s timeMUS) Size(v time.Time) (size int) {
	return varint.Int64.Size(v.Unix()) + varint.Int64.Size(int64(v.Nanosecond()))
}

func (s timeMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// vectorMUS writes a length followed by fixed-width floats. An empty vector
// decodes as nil.
type vectorMUS struct{}

func (s vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (s vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	if length > uint64(len(bs)-n)/4 {
		return nil, n, mus.ErrTooSmallByteSlice
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (s vectorMUS) Size(v []float32) (size int) {
	size = varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return
}

func (s vectorMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type documentMUS struct{}

func (s documentMUS) Marshal(v Document, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.OwnerId, bs[n:])
	n += ord.String.Marshal(v.StoragePath, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.MimeType, bs[n:])
	n += varint.Int64.Marshal(v.SizeBytes, bs[n:])
	n += ord.String.Marshal(v.EmbeddingModel, bs[n:])
	n += varint.Int.Marshal(v.LatestVersion, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.ProcessingError, bs[n:])
	n += TimeMUS.Marshal(v.ProcessingStartedAt, bs[n:])
	n += TimeMUS.Marshal(v.ProcessingFinishedAt, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += TimeMUS.Marshal(v.InsertedAt, bs[n:])
	n += TimeMUS.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (s documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	r := &fieldReader{bs: bs}
	v.Id = readField[ID](r, IDMUS)
	v.OwnerId = readField[string](r, ord.String)
	v.StoragePath = readField[string](r, ord.String)
	v.Title = readField[string](r, ord.String)
	v.MimeType = readField[string](r, ord.String)
	v.SizeBytes = readField[int64](r, varint.Int64)
	v.EmbeddingModel = readField[string](r, ord.String)
	v.LatestVersion = readField[int](r, varint.Int)
	v.Status = ProcessingStatus(readField[string](r, ord.String))
	v.ProcessingError = readField[string](r, ord.String)
	v.ProcessingStartedAt = readField[time.Time](r, TimeMUS)
	v.ProcessingFinishedAt = readField[time.Time](r, TimeMUS)
	v.ChunkCount = readField[int](r, varint.Int)
	v.InsertedAt = readField[time.Time](r, TimeMUS)
	v.UpdatedAt = readField[time.Time](r, TimeMUS)
	return v, r.n, r.err
}

func (s documentMUS) Size(v Document) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.OwnerId)
	size += ord.String.Size(v.StoragePath)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.MimeType)
	size += varint.Int64.Size(v.SizeBytes)
	size += ord.String.Size(v.EmbeddingModel)
	size += varint.Int.Size(v.LatestVersion)
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.ProcessingError)
	size += TimeMUS.Size(v.ProcessingStartedAt)
	size += TimeMUS.Size(v.ProcessingFinishedAt)
	size += varint.Int.Size(v.ChunkCount)
	size += TimeMUS.Size(v.InsertedAt)
	size += TimeMUS.Size(v.UpdatedAt)
	return
}

func (s documentMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type versionMUS struct{}

func (s versionMUS) Marshal(v DocumentVersion, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(v.VersionNo, bs[n:])
	n += ord.String.Marshal(v.Checksum, bs[n:])
	n += ord.String.Marshal(v.ExtractionMode, bs[n:])
	n += varint.Int.Marshal(v.PageCount, bs[n:])
	n += ord.String.Marshal(v.RunId, bs[n:])
	n += TimeMUS.Marshal(v.InsertedAt, bs[n:])
	return
}

func (s versionMUS) Unmarshal(bs []byte) (v DocumentVersion, n int, err error) {
	r := &fieldReader{bs: bs}
	v.Id = readField[ID](r, IDMUS)
	v.DocumentId = readField[ID](r, IDMUS)
	v.VersionNo = readField[int](r, varint.Int)
	v.Checksum = readField[string](r, ord.String)
	v.ExtractionMode = readField[string](r, ord.String)
	v.PageCount = readField[int](r, varint.Int)
	v.RunId = readField[string](r, ord.String)
	v.InsertedAt = readField[time.Time](r, TimeMUS)
	return v, r.n, r.err
}

func (s versionMUS) Size(v DocumentVersion) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.DocumentId)
	size += varint.Int.Size(v.VersionNo)
	size += ord.String.Size(v.Checksum)
	size += ord.String.Size(v.ExtractionMode)
	size += varint.Int.Size(v.PageCount)
	size += ord.String.Size(v.RunId)
	size += TimeMUS.Size(v.InsertedAt)
	return
}

func (s versionMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type chunkMUS struct{}

func (s chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += IDMUS.Marshal(v.VersionId, bs[n:])
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += VectorMUS.Marshal(v.Vector, bs[n:])
	n += varint.Int.Marshal(v.TokenCount, bs[n:])
	n += varint.Int.Marshal(v.PageStart, bs[n:])
	n += varint.Int.Marshal(v.PageEnd, bs[n:])
	n += varint.Int.Marshal(v.OverlapStart, bs[n:])
	n += varint.Int.Marshal(v.OverlapEnd, bs[n:])
	n += ord.String.Marshal(v.EmbeddingModel, bs[n:])
	n += ord.String.Marshal(string(v.Status), bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	n += TimeMUS.Marshal(v.InsertedAt, bs[n:])
	return
}

func (s chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	r := &fieldReader{bs: bs}
	v.Id = readField[ID](r, IDMUS)
	v.DocumentId = readField[ID](r, IDMUS)
	v.VersionId = readField[ID](r, IDMUS)
	v.Index = readField[int](r, varint.Int)
	v.Content = readField[string](r, ord.String)
	v.Vector = readField[[]float32](r, VectorMUS)
	v.TokenCount = readField[int](r, varint.Int)
	v.PageStart = readField[int](r, varint.Int)
	v.PageEnd = readField[int](r, varint.Int)
	v.OverlapStart = readField[int](r, varint.Int)
	v.OverlapEnd = readField[int](r, varint.Int)
	v.EmbeddingModel = readField[string](r, ord.String)
	v.Status = ChunkStatus(readField[string](r, ord.String))
	v.Error = readField[string](r, ord.String)
	v.InsertedAt = readField[time.Time](r, TimeMUS)
	return v, r.n, r.err
}

func (s chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.DocumentId)
	size += IDMUS.Size(v.VersionId)
	size += varint.Int.Size(v.Index)
	size += ord.String.Size(v.Content)
	size += VectorMUS.Size(v.Vector)
	size += varint.Int.Size(v.TokenCount)
	size += varint.Int.Size(v.PageStart)
	size += varint.Int.Size(v.PageEnd)
	size += varint.Int.Size(v.OverlapStart)
	size += varint.Int.Size(v.OverlapEnd)
	size += ord.String.Size(v.EmbeddingModel)
	size += ord.String.Size(string(v.Status))
	size += ord.String.Size(v.Error)
	size += TimeMUS.Size(v.InsertedAt)
	return
}

func (s chunkMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
