package main

import (
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"github.com/yourorg/surveyx_cc/config"
	"github.com/yourorg/surveyx_cc/log"
)

func newChaincode() (*contractapi.ContractChaincode, error) {
	contract := new(SurveyXContract)
	contract.Name = "surveyx"
	cc, err := contractapi.NewChaincode(contract)
	if err != nil {
		return nil, err
	}
	cc.Info.Title = "SurveyX"
	cc.Info.Version = "1.0.0"
	cc.DefaultContract = contract.GetName()
	return cc, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	cc, err := newChaincode()
	if err != nil {
		log.Fatal(err)
	}

	if !cfg.External() {
		log.Info("starting surveyx chaincode (peer launched)")
		if err := cc.Start(); err != nil {
			log.Fatal(err)
		}
		return
	}

	server := &shim.ChaincodeServer{
		CCID:    cfg.ChaincodeID,
		Address: cfg.ServerAddress,
		CC:      cc,
		TLSProps: shim.TLSProperties{
			Disabled:      cfg.TLS.Disabled,
			Key:           cfg.TLS.Key,
			Cert:          cfg.TLS.Cert,
			ClientCACerts: cfg.TLS.ClientCACert,
		},
	}
	log.Infof("starting surveyx chaincode service on %s (tls=%t)", cfg.ServerAddress, !cfg.TLS.Disabled)
	if err := server.Start(); err != nil {
		log.Fatal(err)
	}
}
