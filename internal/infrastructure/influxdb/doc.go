// Package influxdb exports accepted readings to InfluxDB v2.
//
// Every reading folded into a device aggregate becomes one point in the
// device_readings measurement, tagged with the device id and stamped with
// the reading's own timestamp:
//
//	device_readings,device_id=36d5658a6b3b4d3e8f8b1c2a9e7f0a11 count=17i 1613347200000000000
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch errors are delivered asynchronously to the
// callback registered with SetOnError.
package influxdb
