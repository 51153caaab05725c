// Optional readout of a SunSpec-compatible solar inverter over modbus TCP,
// exposed next to the meter readings so dashboards can show consumption and
// production side by side.
package solarinverter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/config"
	"github.com/goburrow/modbus"
	probing "github.com/prometheus-community/pro-bing"
)

var (
	ErrModbusNotConfigured = fmt.Errorf("modbus not configured") // may be intended
	ErrModbusReadFailed    = fmt.Errorf("modbus read failed")
	ErrInverterUnreachable = fmt.Errorf("inverter unreachable")
)

// SunSpec inverter model 103: AC power register and its scale factor.
const (
	acPowerRegister = 40083
	registerCount   = 2
)

var (
	solarPowerMu      sync.Mutex
	lastSolarReadWatt int32 = 0
	lastSolarReadTime time.Time
)

// IsModbusConfigured checks if the modbus configuration is set.
// This feature is optional, Empty values as config are acceptable.
func IsModbusConfigured() bool {
	return config.ActiveInterpreterAPIConfig.SolarInverterIp != "" &&
		config.ActiveInterpreterAPIConfig.SolarInverterModbusPort != 0
}

func ReadSolarData() (int32, error) {
	// Check if configured
	if !IsModbusConfigured() {
		return 0, ErrModbusNotConfigured
	}

	// Use cached reads to avoid spamming the poor inverter
	solarPowerMu.Lock()
	defer solarPowerMu.Unlock()
	if lastSolarReadTime.After(time.Now().Add(-10 * time.Second)) {
		return lastSolarReadWatt, nil
	}

	host := config.ActiveInterpreterAPIConfig.SolarInverterIp
	port := config.ActiveInterpreterAPIConfig.SolarInverterModbusPort

	const maxRetries = 3
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second)
		}

		// Ping check before attempting modbus connection
		if ok, err := ping(host); !ok || err != nil {
			lastErr = fmt.Errorf("%w on attempt %d: %v", ErrInverterUnreachable, attempt+1, err)
			continue
		}

		handler := modbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", host, port))
		handler.Timeout = 10 * time.Second
		handler.SlaveId = 1

		if err := handler.Connect(); err != nil {
			lastErr = fmt.Errorf("connection failed on attempt %d: %w", attempt+1, err)
			handler.Close()
			continue
		}

		client := modbus.NewClient(handler)

		// Read AC power and its scale factor
		result, err := client.ReadHoldingRegisters(acPowerRegister, registerCount)
		handler.Close()

		if err != nil {
			lastErr = fmt.Errorf("read power failed on attempt %d: %w", attempt+1, err)
			continue
		}

		power := scalePower(result)
		lastSolarReadWatt = power
		lastSolarReadTime = time.Now()
		return power, nil
	}

	return 0, errors.Join(ErrModbusReadFailed, lastErr)
}

// scalePower combines the signed AC power register with its base-10 scale
// factor register per SunSpec model 103.
func scalePower(registers []byte) int32 {
	if len(registers) < 4 {
		return 0
	}

	power := int32(int16(uint16(registers[0])<<8 | uint16(registers[1])))
	scale := int(int16(uint16(registers[2])<<8 | uint16(registers[3])))

	for ; scale > 0; scale-- {
		power *= 10
	}
	for ; scale < 0; scale++ {
		power /= 10
	}
	return power
}

func ping(host string) (bool, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, err
	}
	pinger.Count = 1
	pinger.Timeout = 3 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return false, err
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}
