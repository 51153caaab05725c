package config

type MeterCollectorConfig struct {
	InterpreterAPIHost string `toml:"interpreter_api_host"`
	TLSEnabled         bool   `toml:"tls_enabled"`
}

type InterpreterAPIConfig struct {
	SerialDevice string `toml:"serial_device"`
	// Model name from the supported device table, e.g. "CM160"
	DeviceModel             string `toml:"device_model"`
	ListenAddress           string `toml:"listen_address"`
	ListenPort              int    `toml:"listen_port"`
	SolarInverterIp         string `toml:"solar_inverter_ip"`
	SolarInverterModbusPort int    `toml:"solar_inverter_modbus_port"`
}
