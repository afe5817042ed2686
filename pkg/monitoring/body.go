package monitoring

import "encoding/json"

type dashboardBody struct {
	Widgets []bodyWidget `json:"widgets"`
}

type bodyWidget struct {
	Type       WidgetType     `json:"type"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Properties map[string]any `json:"properties"`
}

// DashboardBody renders d as a CloudWatch dashboard body. Rows are stacked vertically and the
// widgets of a row placed left to right.
func DashboardBody(d Dashboard, region string) ([]byte, error) {
	body := dashboardBody{Widgets: []bodyWidget{}}
	y := 0
	for _, row := range d.Rows {
		x, height := 0, 0
		for _, w := range row {
			body.Widgets = append(body.Widgets, bodyWidget{
				Type:       w.Type,
				X:          x,
				Y:          y,
				Width:      w.Width,
				Height:     w.Height,
				Properties: widgetProperties(w, region),
			})
			x += w.Width
			if w.Height > height {
				height = w.Height
			}
		}
		y += height
	}
	return json.Marshal(body)
}

func widgetProperties(w Widget, region string) map[string]any {
	if w.Type == WidgetText {
		return map[string]any{"markdown": w.Markdown}
	}

	metrics := make([][]any, 0, len(w.Left)+len(w.Right))
	add := func(ms []Metric, axis string) {
		for _, m := range ms {
			line := []any{m.Namespace, m.Name}
			for _, k := range sortedKeys(m.Dimensions) {
				line = append(line, k, m.Dimensions[k])
			}
			line = append(line, map[string]any{
				"stat":   m.Statistic,
				"period": m.PeriodSeconds(),
				"yAxis":  axis,
			})
			metrics = append(metrics, line)
		}
	}
	add(w.Left, "left")
	add(w.Right, "right")

	props := map[string]any{
		"title":   w.Title,
		"view":    "timeSeries",
		"metrics": metrics,
		"yAxis":   map[string]any{"left": map[string]any{"min": 0}, "right": map[string]any{"min": 0}},
	}
	if region != "" {
		props["region"] = region
	}
	return props
}
