package native

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spetersoncode/dylan/tool"
)

// WeatherArgs are the arguments of the weather tool.
type WeatherArgs struct {
	Location string `json:"location" jsonschema:"description=Location for weather forecast (city name or coordinates)"`
}

type wttrValue struct {
	Value string `json:"value"`
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC         string      `json:"temp_C"`
		FeelsLikeC    string      `json:"FeelsLikeC"`
		Humidity      string      `json:"humidity"`
		WindspeedKmph string      `json:"windspeedKmph"`
		WeatherDesc   []wttrValue `json:"weatherDesc"`
	} `json:"current_condition"`
}

func (c *config) weather(ctx context.Context, args WeatherArgs) (string, error) {
	location := strings.TrimSpace(args.Location)
	if location == "" {
		return "", tool.InvalidArgumentsf("location is required")
	}

	u := strings.TrimRight(c.weatherURL, "/") + "/" + url.PathEscape(location) + "?format=j1"
	var data wttrResponse
	if err := c.getJSON(ctx, u, &data); err != nil {
		return "", fmt.Errorf("could not get weather for %s: %w", location, err)
	}

	temp, feels, humidity, wind, desc := "N/A", "N/A", "N/A", "N/A", "N/A"
	if len(data.CurrentCondition) > 0 {
		cur := data.CurrentCondition[0]
		temp = orNA(cur.TempC)
		feels = orNA(cur.FeelsLikeC)
		humidity = orNA(cur.Humidity)
		wind = orNA(cur.WindspeedKmph)
		if len(cur.WeatherDesc) > 0 {
			desc = orNA(cur.WeatherDesc[0].Value)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Weather in %s:\n", location)
	fmt.Fprintf(&b, "Temperature: %s°C\n", temp)
	fmt.Fprintf(&b, "Feels like: %s°C\n", feels)
	fmt.Fprintf(&b, "Weather: %s\n", desc)
	fmt.Fprintf(&b, "Humidity: %s%%\n", humidity)
	fmt.Fprintf(&b, "Wind: %s km/h", wind)
	return b.String(), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
