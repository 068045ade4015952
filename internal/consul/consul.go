package consul

import (
	"fmt"
	"log/slog"

	consulapi "github.com/hashicorp/consul/api"
)

func NewClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	return client, nil
}

// Registration describes this instance in the service catalog.
type Registration struct {
	Name string
	Host string
	Port int
	Tags []string
}

func (r Registration) ID() string {
	return fmt.Sprintf("%s-%s-%d", r.Name, r.Host, r.Port)
}

// Register adds the service with an HTTP health check on /ping.
func Register(client *consulapi.Client, r Registration) (string, error) {
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.ID(),
		Name:    r.Name,
		Address: r.Host,
		Port:    r.Port,
		Tags:    r.Tags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/ping", r.Host, r.Port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return "", fmt.Errorf("failed to register service %s: %w", r.Name, err)
	}
	slog.Info("registered with consul", slog.String("service_id", reg.ID))
	return reg.ID, nil
}

func Deregister(client *consulapi.Client, serviceID string) error {
	if err := client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", serviceID, err)
	}
	return nil
}
