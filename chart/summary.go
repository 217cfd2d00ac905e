package chart

// Summary is the headline result for one server.
type Summary struct {
	Server string
	Points int

	PeakReqPS float64
	PeakSize  float64

	// WorstLat99 is the highest 99th percentile latency seen, in ms.
	WorstLat99 float64
}

// Summarize returns one Summary per server, in Servers order.
func Summarize(ds *Dataset) []Summary {
	var out []Summary
	for _, server := range ds.Servers() {
		s := Summary{Server: server}
		for i, row := range ds.Group(server) {
			if i == 0 || row.ReqPS > s.PeakReqPS {
				s.PeakReqPS = row.ReqPS
				s.PeakSize = row.Size
			}
			if lat := row.Lat99 / usPerMs; i == 0 || lat > s.WorstLat99 {
				s.WorstLat99 = lat
			}
			s.Points++
		}
		out = append(out, s)
	}
	return out
}
