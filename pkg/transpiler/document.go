package transpiler

import (
	"encoding/json"
	"math"
)

// MarshalJSON encodes the mission through Document, so scenarios with nan
// or inf values still encode.
func (m Mission) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Document())
}

// Document returns m as a generic map with the same keys as its JSON form.
// NaN and infinite values become nil.
func (m *Mission) Document() map[string]interface{} {
	burns := make([]interface{}, 0, len(m.Burns))
	for _, b := range m.Burns {
		burns = append(burns, map[string]interface{}{
			"name":              b.Name,
			"coordinate_system": b.CoordinateSystem,
			"origin":            b.Origin,
			"axes":              b.Axes,
			"delta_v":           finiteSlice(b.DeltaV[:]),
			"active":            b.Active,
			"time_input":        b.TimeInput,
			"requested_time":    finite(b.RequestedTime),
			"time":              finite(b.Time),
			"scheduled":         b.Scheduled,
		})
	}

	fm := map[string]interface{}{
		"central_body":     m.ForceModel.CentralBody,
		"gravity_model":    m.ForceModel.GravityModel,
		"atmosphere_input": m.ForceModel.AtmosphereInput,
		"atmosphere":       m.ForceModel.Atmosphere,
		"drag_model":       m.ForceModel.DragModel,
		"gravity":          nil,
	}
	if g := m.ForceModel.Gravity; g != nil {
		fm["gravity"] = map[string]interface{}{
			"potential_file": g.PotentialFile,
			"degree":         g.Degree,
			"order":          g.Order,
			"stm_limit":      g.StmLimit,
		}
	}

	p := m.Propagator
	fields := make([]interface{}, 0, len(m.ReportFields))
	for _, f := range m.ReportFields {
		fields = append(fields, f)
	}

	return map[string]interface{}{
		"craft":             m.Craft,
		"central_body":      m.CentralBody,
		"coordinate_system": m.CoordinateSystem,
		"axes":              m.Axes,
		"date_format":       m.DateFormat,
		"epoch":             m.Epoch,
		"start_input":       m.StartInput,
		"end_input":         m.EndInput,
		"date_only":         m.DateOnly,
		"duration_days":     finite(m.DurationDays),
		"state_type":        m.StateType,
		"state":             finiteSlice(m.State[:]),
		"dry_mass":          finite(m.DryMass),
		"fuel_mass":         finite(m.FuelMass),
		"propagator": map[string]interface{}{
			"type":              p.Type,
			"initial_step":      finite(p.InitialStep),
			"accuracy":          finite(p.Accuracy),
			"min_step":          finite(p.MinStep),
			"max_step":          finite(p.MaxStep),
			"max_step_attempts": p.MaxStepAttempts,
		},
		"force_model":   fm,
		"burns":         burns,
		"report_fields": fields,
		"extended":      m.Extended,
	}
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func finiteSlice(vs []float64) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = finite(v)
	}
	return out
}
