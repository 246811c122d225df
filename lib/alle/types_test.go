package alle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointsValueUnmarshal(t *testing.T) {
	cases := []struct {
		in     string
		expect int64
	}{
		{in: `150`, expect: 150},
		{in: `"1,234"`, expect: 1234},
		{in: `"75"`, expect: 75},
		{in: `150.0`, expect: 150},
		{in: `null`, expect: 0},
		{in: `""`, expect: 0},
		{in: `"n/a"`, expect: 0},
	}

	for _, test := range cases {
		var got PointsValue
		err := json.Unmarshal([]byte(test.in), &got)
		if err != nil {
			t.Fatal(test.in, err)
		}
		require.Equal(t, test.expect, int64(got), "input: %s", test.in)
	}
}

func TestPointsValueMarshal(t *testing.T) {
	out, err := json.Marshal(PointsValue(1234))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, `1234`, string(out))
}

func TestNormalizeAction(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{in: "Earned", expect: ActionEarn},
		{in: "earn", expect: ActionEarn},
		{in: "REDEEMED", expect: ActionRedeem},
		{in: "spent", expect: ActionRedeem},
		{in: "Expired", expect: ActionExpire},
		{in: "correction", expect: ActionAdjust},
		{in: "", expect: ActionAdjust},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, NormalizeAction(test.in), "input: %s", test.in)
	}
}

func TestMockDatasetBalancesMatchHistory(t *testing.T) {
	data := MockDataset()
	for _, m := range data.Members {
		var sum int64
		for _, entry := range data.History[m.Id] {
			sum += int64(entry.PointsChange)
		}
		require.Equal(t, int64(data.Points[m.Id].Points), sum, "member %s", m.Id)
	}
}
