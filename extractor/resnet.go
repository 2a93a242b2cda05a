package extractor

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/expki/go-imagesearch/config"
	_ "github.com/expki/go-imagesearch/env"
	ort "github.com/yalue/onnxruntime_go"
)

// ImageNet channel statistics used to train the backbone.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ResNet runs a pretrained convolutional backbone, classification head
// removed, exported to ONNX. The session holds one preallocated tensor pair,
// so extractions are serialized by a mutex.
type ResNet struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	model   string
	dims    int
	once    sync.Once
}

func NewResNet(cfg config.Extractor) (*ResNet, error) {
	ort.SetSharedLibraryPath(cfg.LibraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnx: %w", err)
	}

	size := config.EXTRACTOR_INPUT_SIZE
	inputShape := ort.NewShape(1, 3, int64(size), int64(size))
	outputShape := ort.NewShape(1, int64(cfg.VectorSize))

	input, err := ort.NewTensor(inputShape, make([]float32, 3*size*size))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	output, err := ort.NewTensor(outputShape, make([]float32, cfg.VectorSize))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &ResNet{
		session: session,
		input:   input,
		output:  output,
		model:   cfg.Model,
		dims:    cfg.VectorSize,
	}, nil
}

func (r *ResNet) Extract(ctx context.Context, path string) (vector []float32, elapsed time.Duration, err error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	src, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, &ExtractionError{Path: path, Err: fmt.Errorf("decode image: %w", err)}
	}

	pixels := preprocess(src)

	r.mu.Lock()
	copy(r.input.GetData(), pixels)
	err = r.session.Run()
	if err != nil {
		r.mu.Unlock()
		return nil, 0, &ExtractionError{Path: path, Err: fmt.Errorf("inference: %w", err)}
	}
	vector = make([]float32, r.dims)
	copy(vector, r.output.GetData())
	r.mu.Unlock()

	normalize(vector)

	return vector, time.Since(start), nil
}

func (r *ResNet) ModelName() string {
	return r.model
}

func (r *ResNet) Dimensions() int {
	return r.dims
}

func (r *ResNet) Close() {
	r.once.Do(func() {
		r.session.Destroy()
		r.input.Destroy()
		r.output.Destroy()
		ort.DestroyEnvironment()
	})
}

// preprocess resizes to the backbone input geometry and lays the pixels out
// as normalized NCHW floats.
func preprocess(src image.Image) []float32 {
	size := config.EXTRACTOR_INPUT_SIZE
	resized := imaging.Resize(src, size, size, imaging.Lanczos)

	pixels := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := y*resized.Stride + x*4
			idx := y*size + x
			for c := 0; c < 3; c++ {
				value := float32(resized.Pix[offset+c]) / 255.0
				pixels[c*plane+idx] = (value - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return pixels
}

// normalize scales the vector to unit Euclidean norm.
func normalize(v []float32) {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
