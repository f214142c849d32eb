package stream

import "encoding/json"

// PlaybackToken is the short-lived grant returned by the GraphQL endpoint.
// Value is an opaque JSON blob carrying entitlement flags; Signature signs it
// for the usher endpoint. Fetched fresh per playback request, never persisted.
type PlaybackToken struct {
	Value     string
	Signature string
}

// Entitlements are the flags embedded in a playback token value. Fields are
// "unknown" until actually seen in a token: absence is not a negative value.
type Entitlements struct {
	ShowAds    string
	HideAds    string
	Privileged string
	Role       string
	Subscriber string
	Turbo      string
	Adblock    string
}

func unknownEntitlements() Entitlements {
	return Entitlements{
		ShowAds:    "N/A",
		HideAds:    "N/A",
		Privileged: "N/A",
		Role:       "N/A",
		Subscriber: "N/A",
		Turbo:      "N/A",
		Adblock:    "N/A",
	}
}

// parseEntitlements decodes the token value opportunistically; fields the
// token does not carry keep their "N/A" marker.
func parseEntitlements(tokenValue string) Entitlements {
	result := unknownEntitlements()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tokenValue), &fields); err != nil {
		return result
	}

	boolField := func(name string, target *string) {
		raw, ok := fields[name]
		if !ok {
			return
		}
		var value bool
		if err := json.Unmarshal(raw, &value); err != nil {
			return
		}
		if value {
			*target = "true"
		} else {
			*target = "false"
		}
	}

	boolField("show_ads", &result.ShowAds)
	boolField("hide_ads", &result.HideAds)
	boolField("privileged", &result.Privileged)
	boolField("subscriber", &result.Subscriber)
	boolField("turbo", &result.Turbo)
	boolField("adblock", &result.Adblock)

	if raw, ok := fields["role"]; ok {
		var role string
		if err := json.Unmarshal(raw, &role); err == nil {
			result.Role = role
		}
	}

	return result
}

type gqlResponse struct {
	Data struct {
		StreamPlaybackAccessToken *struct {
			Value     string `json:"value"`
			Signature string `json:"signature"`
		} `json:"streamPlaybackAccessToken"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type integrityResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
