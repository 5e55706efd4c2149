package nn

import (
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
)

const snapshotVersion = 1

// layerSnapshot captures the configuration of one layer. Parameter values
// live in the flat vector of the enclosing network snapshot.
type layerSnapshot struct {
	Type     string  `json:"type" xml:"type,attr"`
	In       int     `json:"in,omitempty" xml:"in,omitempty"`
	Out      int     `json:"out,omitempty" xml:"out,omitempty"`
	Ratio    float64 `json:"ratio,omitempty" xml:"ratio,omitempty"`
	Rho      int     `json:"rho,omitempty" xml:"rho,omitempty"`
	Transfer string  `json:"transfer,omitempty" xml:"transfer,omitempty"`
}

// networkSnapshot is the serialized form of a trained model. The same layout
// is used for JSON, XML and binary encodings, so a model saved in one format
// restores identical predictions from any of them.
type networkSnapshot struct {
	XMLName    xml.Name        `json:"-" xml:"network"`
	Version    int             `json:"version" xml:"version,attr"`
	Kind       string          `json:"kind" xml:"kind"`
	Rho        int             `json:"rho" xml:"rho"`
	Single     bool            `json:"single" xml:"single"`
	Loss       string          `json:"loss" xml:"loss"`
	Layers     []layerSnapshot `json:"layers" xml:"layers>layer"`
	Parameters []float64       `json:"parameters" xml:"parameters>p"`
}

func snapshotLayer(l Layer) (layerSnapshot, error) {
	switch v := l.(type) {
	case *Identity:
		return layerSnapshot{Type: constants.LayerTypeIdentity}, nil
	case *Linear:
		return layerSnapshot{Type: constants.LayerTypeLinear, In: v.InputSize(), Out: v.OutputSize()}, nil
	case *LinearNoBias:
		return layerSnapshot{Type: constants.LayerTypeLinearNoBias, In: v.InputSize(), Out: v.OutputSize()}, nil
	case *Add:
		return layerSnapshot{Type: constants.LayerTypeAdd, Out: v.OutputSize()}, nil
	case *Sigmoid:
		return layerSnapshot{Type: constants.LayerTypeSigmoid}, nil
	case *LogSoftMax:
		return layerSnapshot{Type: constants.LayerTypeLogSoftMax}, nil
	case *Dropout:
		return layerSnapshot{Type: constants.LayerTypeDropout, Ratio: v.Ratio()}, nil
	case *Recurrent:
		return layerSnapshot{
			Type:     constants.LayerTypeRecurrent,
			In:       v.InputSize(),
			Out:      v.OutputSize(),
			Rho:      v.Rho(),
			Transfer: v.Transfer().Name(),
		}, nil
	case *LSTM:
		return layerSnapshot{Type: constants.LayerTypeLSTM, In: v.InputSize(), Out: v.OutputSize()}, nil
	case *FastLSTM:
		return layerSnapshot{Type: constants.LayerTypeFastLSTM, In: v.InputSize(), Out: v.OutputSize()}, nil
	case *GRU:
		return layerSnapshot{Type: constants.LayerTypeGRU, In: v.InputSize(), Out: v.OutputSize()}, nil
	default:
		return layerSnapshot{}, errors.NewSerializationError(errors.CodeUnknownLayerType,
			fmt.Sprintf("layer type %q cannot be serialized", l.Name()))
	}
}

func layerFromSnapshot(s layerSnapshot) (Layer, error) {
	switch s.Type {
	case constants.LayerTypeIdentity:
		return NewIdentity(), nil
	case constants.LayerTypeLinear:
		return NewLinear(s.In, s.Out), nil
	case constants.LayerTypeLinearNoBias:
		return NewLinearNoBias(s.In, s.Out), nil
	case constants.LayerTypeAdd:
		return NewAdd(s.Out), nil
	case constants.LayerTypeSigmoid:
		return NewSigmoid(), nil
	case constants.LayerTypeLogSoftMax:
		return NewLogSoftMax(), nil
	case constants.LayerTypeDropout:
		return NewDropout(s.Ratio), nil
	case constants.LayerTypeRecurrent:
		if s.Transfer != "" && s.Transfer != constants.LayerTypeSigmoid {
			return nil, errors.NewSerializationError(errors.CodeUnknownLayerType,
				fmt.Sprintf("unsupported recurrent transfer %q", s.Transfer))
		}
		return NewRecurrent(NewAdd(s.Out), NewLinear(s.In, s.Out), NewLinear(s.Out, s.Out), NewSigmoid(), s.Rho), nil
	case constants.LayerTypeLSTM:
		return NewLSTM(s.In, s.Out), nil
	case constants.LayerTypeFastLSTM:
		return NewFastLSTM(s.In, s.Out), nil
	case constants.LayerTypeGRU:
		return NewGRU(s.In, s.Out), nil
	default:
		return nil, errors.NewSerializationError(errors.CodeUnknownLayerType,
			fmt.Sprintf("unknown layer type %q", s.Type))
	}
}

func encodeSnapshot(w io.Writer, format string, snap *networkSnapshot) error {
	switch format {
	case constants.FormatJSON:
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed, "JSON encoding failed")
		}
	case constants.FormatXML:
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed, "XML encoding failed")
		}
	case constants.FormatBinary:
		if err := gob.NewEncoder(w).Encode(snap); err != nil {
			return errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeEncodeFailed, "binary encoding failed")
		}
	default:
		return errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("unknown serialization format %q", format))
	}
	return nil
}

func decodeSnapshot(r io.Reader, format string) (*networkSnapshot, error) {
	snap := &networkSnapshot{}
	switch format {
	case constants.FormatJSON:
		if err := json.NewDecoder(r).Decode(snap); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeDecodeFailed, "JSON decoding failed")
		}
	case constants.FormatXML:
		if err := xml.NewDecoder(r).Decode(snap); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeDecodeFailed, "XML decoding failed")
		}
	case constants.FormatBinary:
		if err := gob.NewDecoder(r).Decode(snap); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeSerialization, errors.CodeDecodeFailed, "binary decoding failed")
		}
	default:
		return nil, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("unknown serialization format %q", format))
	}
	if snap.Version != snapshotVersion {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("unsupported snapshot version %d", snap.Version))
	}
	return snap, nil
}

func snapshotLayers(layers []Layer) ([]layerSnapshot, error) {
	out := make([]layerSnapshot, 0, len(layers))
	for _, l := range layers {
		s, err := snapshotLayer(l)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Save writes the model configuration and parameters in the given format.
func (m *RNN) Save(w io.Writer, format string) error {
	layers, err := snapshotLayers(m.net.layers)
	if err != nil {
		return err
	}
	snap := &networkSnapshot{
		Version:    snapshotVersion,
		Kind:       constants.ModelTypeRNN,
		Rho:        m.rho,
		Single:     m.single,
		Loss:       m.loss.Name(),
		Layers:     layers,
		Parameters: m.Parameters(),
	}
	return encodeSnapshot(w, format, snap)
}

// LoadRNN restores a model saved with RNN.Save. Predictions of the restored
// model match the saved one exactly.
func LoadRNN(r io.Reader, format string) (*RNN, error) {
	snap, err := decodeSnapshot(r, format)
	if err != nil {
		return nil, err
	}
	if snap.Kind != constants.ModelTypeRNN {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("snapshot holds a %q model, want %q", snap.Kind, constants.ModelTypeRNN))
	}

	loss, ok := lossByName(snap.Loss)
	if !ok {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("unknown loss %q", snap.Loss))
	}

	model := NewRNN(snap.Rho, snap.Single, loss)
	for _, ls := range snap.Layers {
		layer, err := layerFromSnapshot(ls)
		if err != nil {
			return nil, err
		}
		model.Add(layer)
	}

	model.net.bind()
	if len(snap.Parameters) != len(model.net.params) {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("snapshot carries %d parameters, network needs %d",
				len(snap.Parameters), len(model.net.params)))
	}
	copy(model.net.params, snap.Parameters)
	return model, nil
}

// Save writes the model configuration and the parameters of both stacks in
// the given format.
func (m *BRNN) Save(w io.Writer, format string) error {
	layers, err := snapshotLayers(m.fwd.layers)
	if err != nil {
		return err
	}
	snap := &networkSnapshot{
		Version:    snapshotVersion,
		Kind:       constants.ModelTypeBRNN,
		Rho:        m.rho,
		Single:     m.single,
		Loss:       m.loss.Name(),
		Layers:     layers,
		Parameters: m.Parameters(),
	}
	return encodeSnapshot(w, format, snap)
}

// LoadBRNN restores a model saved with BRNN.Save.
func LoadBRNN(r io.Reader, format string) (*BRNN, error) {
	snap, err := decodeSnapshot(r, format)
	if err != nil {
		return nil, err
	}
	if snap.Kind != constants.ModelTypeBRNN {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("snapshot holds a %q model, want %q", snap.Kind, constants.ModelTypeBRNN))
	}

	loss, ok := lossByName(snap.Loss)
	if !ok {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("unknown loss %q", snap.Loss))
	}

	model := NewBRNN(snap.Rho, snap.Single, loss)
	for _, ls := range snap.Layers {
		layer, err := layerFromSnapshot(ls)
		if err != nil {
			return nil, err
		}
		model.Add(layer)
	}

	model.bind()
	if len(snap.Parameters) != len(model.params) {
		return nil, errors.NewSerializationError(errors.CodeSnapshotCorrupt,
			fmt.Sprintf("snapshot carries %d parameters, network needs %d",
				len(snap.Parameters), len(model.params)))
	}
	copy(model.params, snap.Parameters)
	return model, nil
}
