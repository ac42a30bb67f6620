// Package influxdb records registry metrics in InfluxDB v2.
//
// Each committed registration becomes one point in the
// device_registrations measurement, tagged with the owner and carrying a
// count field of 1, so per-owner and fleet-wide registration rates fall
// out of a simple sum. Writes are batched and non-blocking; write errors
// surface through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordRegistration("alice", time.Now())
package influxdb
