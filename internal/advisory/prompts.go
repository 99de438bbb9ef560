package advisory

import (
	"bytes"
	"strconv"
	"text/template"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// AdvisoryRequest is the context sent with an advice request.
type AdvisoryRequest struct {
	Weather  models.WeatherSnapshot
	Crop     string
	Location string
	Season   string
}

// SummaryRequest is the context sent with a quick-summary request.
type SummaryRequest struct {
	Weather  models.WeatherSnapshot
	Crop     string
	Location string
}

var advisoryTmpl = template.Must(template.New("advisory").Funcs(funcs).Parse(`You are an agricultural advisor AI. Based on the following weather data and crop information, provide specific, actionable farming advice.

Weather Data:
- Temperature: {{num .Weather.TempC}}°C
- Humidity: {{num .Weather.Humidity}}%
- Wind Speed: {{num .Weather.WindKph}} km/h
- Precipitation: {{num .Weather.PrecipMM}}mm
- UV Index: {{num .Weather.UV}}
- Condition: {{.Weather.Condition}}
- Location: {{.Weather.Location.Name}}, {{.Weather.Location.Region}}

Crop Type: {{or .Crop "General crops"}}
Season: {{or .Season "Current season"}}

Please provide:
1. 3-5 specific recommendations for today's farming activities
2. Any weather-related alerts or warnings
3. Priority level (low/medium/high) based on weather conditions

Format your response as JSON with this structure:
{
  "recommendations": ["recommendation 1", "recommendation 2", ...],
  "alerts": ["alert 1", "alert 2", ...],
  "priority": "low|medium|high"
}`))

var summaryTmpl = template.Must(template.New("summary").Funcs(funcs).Parse(`You are an expert agricultural AI assistant for farmers. Your goal is to provide a highly relevant, concise, and actionable summary based on the provided real-time data.

Location: {{.Location}}
Crop: {{.Crop}}
Current Weather: {{num .Weather.TempC}}°C, {{.Weather.Condition}}
Humidity: {{num .Weather.Humidity}}%
Wind: {{num .Weather.WindKph}} km/h
{{- with .Weather.Forecast}}
Today's Forecast:
  - Max Temp: {{num .MaxTempC}}°C
  - Min Temp: {{num .MinTempC}}°C
  - Chance of Rain: {{num .ChanceOfRain}}%
  - Total Precipitation: {{num .TotalPrecipMM}} mm
{{- end}}

Generate a JSON object with two key fields: "summary" and "tip".

1.  "summary" (max 30 words): briefly describe the current weather's impact on the specified crop and mention any immediate opportunities or threats.
2.  "tip" (max 20 words): one practical, specific action directly related to the summary.

Output Format (JSON only):
{
  "summary": "...",
  "tip": "..."
}`))

var funcs = template.FuncMap{
	"num": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}

// AdvisoryPrompt renders the advice prompt for req.
func AdvisoryPrompt(req AdvisoryRequest) string {
	return render(advisoryTmpl, req)
}

// SummaryPrompt renders the quick-summary prompt for req.
func SummaryPrompt(req SummaryRequest) string {
	return render(summaryTmpl, req)
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	// Templates are static and data is plain structs; Execute cannot fail.
	_ = t.Execute(&buf, data)
	return buf.String()
}
