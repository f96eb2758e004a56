package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-voyage/internal/logger"
)

// EnsureTopicsExist creates the domain topics if they don't already exist.
// Creation failures are logged and skipped so a broker that forbids topic
// autocreation doesn't block startup.
func EnsureTopicsExist(brokers []string, topics []string, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		topicConfigs := []kafka.TopicConfig{
			{
				Topic:             topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			},
		}

		if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("could not create topic %s: %v", topic, err))
			continue
		}
		log.LogKafka("CREATE", topic, "topic ready")
	}

	// Give the broker a moment to propagate metadata
	time.Sleep(1 * time.Second)
	return nil
}

// ListTopics returns all topics known to the broker.
func ListTopics(brokers []string) ([]string, error) {
	conn, err := kafka.DialContext(context.Background(), "tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	topicMap := make(map[string]bool)
	for _, p := range partitions {
		topicMap[p.Topic] = true
	}

	var topics []string
	for topic := range topicMap {
		topics = append(topics, topic)
	}
	return topics, nil
}
