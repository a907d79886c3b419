package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Value_RoundTrip(t *testing.T) {
	when := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	bag := Bag{
		"claim_type": String("auto"),
		"amount":     Number(12500.50),
		"disputed":   Boolean(true),
		"filed_at":   Timestamp(when),
	}

	data, err := json.Marshal(bag)
	require.NoError(t, err)

	var restored Bag
	require.NoError(t, json.Unmarshal(data, &restored))

	require.Equal(t, "auto", restored["claim_type"].Any())
	require.Equal(t, 12500.50, restored["amount"].Any())
	require.Equal(t, true, restored["disputed"].Any())
	require.Equal(t, when, restored["filed_at"].Any())
}

func Test_Value_MarshalKeepsOnlyMatchingField(t *testing.T) {
	data, err := json.Marshal(Number(3))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"number","num":3}`, string(data))

	// A zero number still serializes its field so the kind round-trips.
	data, err = json.Marshal(Number(0))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"number","num":0}`, string(data))
}

func Test_Bag_Env(t *testing.T) {
	bag := Bag{
		"region": String("west"),
		"score":  Number(7),
	}

	env := bag.Env()

	require.Equal(t, map[string]any{"region": "west", "score": float64(7)}, env)
}

func Test_Bag_Clone(t *testing.T) {
	original := Bag{"k": String("v")}

	clone := original.Clone()
	clone["k"] = String("changed")
	clone["extra"] = Boolean(true)

	require.Equal(t, "v", original["k"].Str)
	require.NotContains(t, original, "extra")

	require.Nil(t, Bag(nil).Clone())
}
