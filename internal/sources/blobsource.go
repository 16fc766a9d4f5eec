package sources

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/geopods/podflow/internal/coordinates"
	"github.com/geopods/podflow/internal/errs"
)

// Connection names one blob holding a dense float32 tile: its container
// URL, blob name, connection string, and whether it's authorized for reads.
type Connection interface {
	ContainerURL() string
	BlobName() string
	ConnectionString() string
	IsAuthorizedToRead() bool
}

// ConnectionMaker builds a Connection from a request-level resource path.
type ConnectionMaker func(resource string) (Connection, error)

// BlobSource is an Adapter reading chunked float32 tiles out of Azure Blob
// Storage, the out-of-scope "external collaborator" named in spec.md §1/§6,
// using github.com/Azure/azure-sdk-for-go/sdk/storage/azblob.
type BlobSource struct {
	conn   Connection
	coords *coordinates.CoordinateSet
	noData []float64

	client *azblob.Client
}

func NewBlobSource(conn Connection, coords *coordinates.CoordinateSet, noData []float64) *BlobSource {
	return &BlobSource{conn: conn, coords: coords, noData: noData}
}

func (b *BlobSource) NativeCoordinates(ctx context.Context) (*coordinates.CoordinateSet, error) {
	return b.coords, nil
}

func (b *BlobSource) Open(ctx context.Context) error {
	if b.client != nil {
		return nil
	}
	if !b.conn.IsAuthorizedToRead() {
		return errs.NewUpstreamUnavailable(nil, "blob source: not authorized to read %s/%s", b.conn.ContainerURL(), b.conn.BlobName())
	}
	client, err := azblob.NewClientFromConnectionString(b.conn.ConnectionString(), nil)
	if err != nil {
		return errs.NewUpstreamUnavailable(err, "blob source: open %s", b.conn.BlobName())
	}
	b.client = client
	return nil
}

func (b *BlobSource) Close() error {
	b.client = nil
	return nil
}

func (b *BlobSource) NoDataValues() []float64 { return b.noData }

// Read downloads the whole blob and gathers the requested index ranges out
// of the decoded row-major float32 buffer it contains. A production reader
// would translate ranges into an HTTP range-get; this keeps each call to
// one round-trip.
func (b *BlobSource) Read(ctx context.Context, ranges []coordinates.IndexRange) ([]float64, error) {
	if b.client == nil {
		if err := b.Open(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := b.client.DownloadStream(ctx, b.conn.ContainerURL(), b.conn.BlobName(), nil)
	if err != nil {
		return nil, errs.NewUpstreamUnavailable(err, "blob source: download %s", b.conn.BlobName())
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.NewUpstreamUnavailable(err, "blob source: read body %s", b.conn.BlobName())
	}

	values, err := decodeFloat32LE(buf)
	if err != nil {
		return nil, errs.NewUpstreamUnavailable(err, "blob source: decode %s", b.conn.BlobName())
	}

	shape := b.coords.Shape()
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}

	outShape := make([]int, len(ranges))
	for i, r := range ranges {
		outShape[i] = len(r.Indices)
	}
	total := 1
	for _, s := range outShape {
		total *= s
	}
	out := make([]float64, total)
	for linear := 0; linear < total; linear++ {
		rem := linear
		srcLinear := 0
		for i := len(outShape) - 1; i >= 0; i-- {
			coord := rem % outShape[i]
			rem /= outShape[i]
			srcLinear += ranges[i].Indices[coord] * strides[i]
		}
		if srcLinear >= len(values) {
			return nil, fmt.Errorf("blob source: index %d out of range for blob of %d values", srcLinear, len(values))
		}
		out[linear] = values[srcLinear]
	}
	return out, nil
}

func decodeFloat32LE(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("buffer length %d is not a multiple of 4", len(buf))
	}
	n := len(buf) / 4
	out := make([]float64, n)
	r := bytes.NewReader(buf)
	for i := 0; i < n; i++ {
		var bits uint32
		if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
			return nil, err
		}
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}
